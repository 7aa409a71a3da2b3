package metadata

import (
	"testing"

	"github.com/drblury/protogate/bus"
)

func TestFromHeadersNumbersRepeats(t *testing.T) {
	md := FromHeaders([]bus.Header{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "x"},
		{Key: "a", Value: "2"},
		{Key: "a", Value: "3"},
	})
	want := Metadata{"a": "1", "a~1": "2", "a~2": "3", "b": "x"}
	if len(md) != len(want) {
		t.Fatalf("expected %v, got %v", want, md)
	}
	for k, v := range want {
		if md[k] != v {
			t.Fatalf("expected %s=%s, got %q", k, v, md[k])
		}
	}
}

func TestHeadersRestoresRepeats(t *testing.T) {
	md := Metadata{"b": "x", "a~2": "3", "a": "1", "a~1": "2", "odd~name": "kept", "z~0": "zero"}
	got := md.Headers()
	want := []bus.Header{
		{Key: "a", Value: "1"},
		{Key: "a", Value: "2"},
		{Key: "a", Value: "3"},
		{Key: "b", Value: "x"},
		{Key: "odd~name", Value: "kept"},
		{Key: "z~0", Value: "zero"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("header %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMessageMetadataRoundTrip(t *testing.T) {
	headers := []bus.Header{
		{Key: "a", Value: "1"},
		{Key: "a", Value: "2"},
		{Key: "b", Value: "x"},
	}
	md := ToMessage(headers)
	if md.Get("a~1") != "2" {
		t.Fatalf("expected repeated header under a~1, got %v", md)
	}
	md.Set("_watermill_message_uuid", "ignored")

	got := FromMessage(md)
	if len(got) != len(headers) {
		t.Fatalf("expected %v, got %v", headers, got)
	}
	for i := range headers {
		if got[i] != headers[i] {
			t.Fatalf("header %d: expected %v, got %v", i, headers[i], got[i])
		}
	}

	if len(FromMessage(nil)) != 0 {
		t.Fatal("expected no headers from nil metadata")
	}
}

package jsoncodec

import (
	"bytes"
	"errors"
	"testing"
)

type frame struct {
	Headers [][2]string `json:"headers"`
	Payload string      `json:"payload"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := frame{Headers: [][2]string{{"a", "b"}}, Payload: "hello"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"headers":[["a","b"]],"payload":"hello"}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var out frame
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Payload != in.Payload || out.Headers[0] != in.Headers[0] {
		t.Fatalf("expected round trip to match, got %#v", out)
	}
}

func TestEncodeWritesTrailingNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, "success"); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if buf.String() != "\"success\"\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestObject(t *testing.T) {
	fields, err := Object([]byte(` {"topic":"x","n":1} `))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(fields["topic"]) != `"x"` || string(fields["n"]) != "1" {
		t.Fatalf("unexpected fields %#v", fields)
	}

	if _, err := Object([]byte("{")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, in := range []string{"[]", "null", `"str"`, "12"} {
		if _, err := Object([]byte(in)); !errors.Is(err, ErrNotObject) {
			t.Fatalf("expected ErrNotObject for %s, got %v", in, err)
		}
	}

	empty, err := Object([]byte("{}"))
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v %v", empty, err)
	}
}

func TestLines(t *testing.T) {
	lines := Lines([]byte("{\"a\":1}\n\n{\"b\":2}\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

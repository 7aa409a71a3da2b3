// Package jsoncodec routes every JSON encode and decode in protogate through
// bytedance/sonic configured for encoding/json compatibility.
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

var (
	// ErrInvalid is returned by Object when the input is not JSON at all.
	ErrInvalid = errors.New("jsoncodec: invalid json")
	// ErrNotObject is returned by Object when the input is JSON but not an object.
	ErrNotObject = errors.New("jsoncodec: not a json object")
)

// RawMessage is a raw encoded JSON value whose decoding is deferred.
type RawMessage = json.RawMessage

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// Object decodes a JSON object into its raw fields.
func Object(data []byte) (map[string]RawMessage, error) {
	if !Valid(data) {
		return nil, ErrInvalid
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	var fields map[string]RawMessage
	if err := Unmarshal(trimmed, &fields); err != nil {
		return nil, ErrNotObject
	}
	if fields == nil {
		fields = map[string]RawMessage{}
	}
	return fields, nil
}

// Lines splits newline separated JSON documents, skipping blank lines.
func Lines(data []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}

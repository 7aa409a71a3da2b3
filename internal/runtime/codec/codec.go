// Package codec converts payloads between their wire form in JSON frames and the
// raw bytes carried on the bus.
//
// NONE passes text through and refuses payloads that are not valid UTF-8 on the
// way out, since a JSON string cannot carry them. BASE64 is binary safe in both
// directions.
package codec

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	errspkg "github.com/drblury/protogate/internal/runtime/errors"
)

// Encoding selects the payload representation.
type Encoding int

const (
	None Encoding = iota
	Base64
)

func (e Encoding) String() string {
	switch e {
	case Base64:
		return "base64"
	default:
		return "none"
	}
}

// Parse maps an encoding name onto its value. The empty string means None and
// matching ignores case.
func Parse(name string) (Encoding, bool) {
	switch strings.ToLower(name) {
	case "", "none":
		return None, true
	case "base64":
		return Base64, true
	default:
		return None, false
	}
}

// Decode turns a wire payload into bus bytes.
func Decode(payload string, enc Encoding) ([]byte, error) {
	if enc != Base64 {
		return []byte(payload), nil
	}
	out, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errspkg.BadEncoding(err)
	}
	return out, nil
}

// Encode turns bus bytes into a wire payload.
func Encode(payload []byte, enc Encoding) (string, error) {
	if enc == Base64 {
		return base64.StdEncoding.EncodeToString(payload), nil
	}
	if !utf8.Valid(payload) {
		return "", errspkg.NotUTF8()
	}
	return string(payload), nil
}

package request

import (
	"errors"

	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
)

// fields holds the undecoded members of a request object.
type fields map[string]jsoncodec.RawMessage

// str decodes an optional string field. A JSON null counts as absent.
func (f fields) str(name string) (string, bool, error) {
	raw, ok := f[name]
	if !ok || string(raw) == "null" {
		return "", false, nil
	}
	if len(raw) == 0 || raw[0] != '"' {
		return "", true, errspkg.BadFormat(name, errors.New("expected string"))
	}
	var s string
	if err := jsoncodec.Unmarshal(raw, &s); err != nil {
		return "", true, errspkg.BadFormat(name, err)
	}
	return s, true, nil
}

func (f fields) requiredStr(name string) (string, error) {
	s, ok, err := f.str(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errspkg.MissingField(name)
	}
	return s, nil
}

func (f fields) boolean(name string) (bool, bool, error) {
	raw, ok := f[name]
	if !ok || string(raw) == "null" {
		return false, false, nil
	}
	var b bool
	if err := jsoncodec.Unmarshal(raw, &b); err != nil {
		return false, true, errspkg.BadFormat(name, errors.New("expected boolean"))
	}
	return b, true, nil
}

package errors

import "fmt"

// Kind classifies a request failure.
type Kind int

const (
	KindNotJSON Kind = iota + 1
	KindNotJSONObject
	KindMissingField
	KindUnknownValue
	KindBadFormat
	KindInvalidTopic
	KindBadEncoding
	KindNotUTF8
	KindProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case KindNotJSON:
		return "not_json"
	case KindNotJSONObject:
		return "not_json_object"
	case KindMissingField:
		return "missing_field"
	case KindUnknownValue:
		return "unknown_value"
	case KindBadFormat:
		return "bad_format"
	case KindInvalidTopic:
		return "invalid_topic"
	case KindBadEncoding:
		return "bad_encoding"
	case KindNotUTF8:
		return "not_utf8"
	case KindProtocolViolation:
		return "protocol_violation"
	default:
		return "unknown"
	}
}

// RequestError is a client-visible failure. Its message is stable: clients
// match on it, so the text must not change.
type RequestError struct {
	Kind   Kind
	Field  string
	Value  string
	Detail string
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindNotJSON:
		return "Request must be json."
	case KindNotJSONObject:
		return "Request must be a json object."
	case KindMissingField:
		return "Request missing required field: " + e.Field
	case KindUnknownValue:
		return fmt.Sprintf("Request has unknown value for field: %s  value: %s", e.Field, e.Value)
	case KindBadFormat:
		return fmt.Sprintf("Request field has incorrect format. field: %s  error: %s", e.Field, e.Detail)
	case KindInvalidTopic:
		return "Invalid topic name"
	case KindBadEncoding:
		return "Payload is not valid base64: " + e.Detail
	case KindNotUTF8:
		return "Payload is not valid utf-8. Use response_encoding base64."
	case KindProtocolViolation:
		return e.Detail
	default:
		return "Request is invalid."
	}
}

// Is matches any RequestError of the same kind, so the Err* values below work as
// sentinels with errors.Is.
func (e *RequestError) Is(target error) bool {
	t, ok := target.(*RequestError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotJSON           = &RequestError{Kind: KindNotJSON}
	ErrNotJSONObject     = &RequestError{Kind: KindNotJSONObject}
	ErrMissingField      = &RequestError{Kind: KindMissingField}
	ErrUnknownValue      = &RequestError{Kind: KindUnknownValue}
	ErrBadFormat         = &RequestError{Kind: KindBadFormat}
	ErrInvalidTopic      = &RequestError{Kind: KindInvalidTopic}
	ErrBadEncoding       = &RequestError{Kind: KindBadEncoding}
	ErrNotUTF8           = &RequestError{Kind: KindNotUTF8}
	ErrProtocolViolation = &RequestError{Kind: KindProtocolViolation}
)

func NotJSON() error       { return &RequestError{Kind: KindNotJSON} }
func NotJSONObject() error { return &RequestError{Kind: KindNotJSONObject} }
func InvalidTopic() error  { return &RequestError{Kind: KindInvalidTopic} }
func NotUTF8() error       { return &RequestError{Kind: KindNotUTF8} }

func MissingField(field string) error {
	return &RequestError{Kind: KindMissingField, Field: field}
}

func UnknownValue(field, value string) error {
	return &RequestError{Kind: KindUnknownValue, Field: field, Value: value}
}

func BadFormat(field string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &RequestError{Kind: KindBadFormat, Field: field, Detail: detail}
}

func BadEncoding(cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &RequestError{Kind: KindBadEncoding, Detail: detail}
}

// HandshakeRepeated reports a second handshake on a websocket that does not
// accept acknowledgements.
func HandshakeRepeated() error {
	return &RequestError{Kind: KindProtocolViolation, Detail: "Handshake only allowed once per websocket."}
}

// UnexpectedFrame reports a frame type the websocket route does not accept.
func UnexpectedFrame() error {
	return &RequestError{Kind: KindProtocolViolation, Detail: "Unexpected websocket frame type."}
}

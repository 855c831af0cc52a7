package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const maxErrorSnippet = 256

// ConfigurationError reports an unusable credential or client option.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("deepinfra client configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure of the underlying HTTP exchange. Nothing
// is retried by this package.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deepinfra %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a 2xx body that does not match the expected shape.
type DecodeError struct {
	Status int
	Body   []byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode provider response (status %d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// APIErrorKind distinguishes parseable provider errors from opaque ones.
type APIErrorKind int

const (
	// ProviderError carries the provider's error envelope.
	ProviderError APIErrorKind = iota + 1
	// UnexpectedError is a non-2xx response whose body could not be parsed.
	UnexpectedError
)

func (k APIErrorKind) String() string {
	switch k {
	case ProviderError:
		return "provider"
	case UnexpectedError:
		return "unexpected"
	default:
		return "unknown"
	}
}

// APIError is a non-2xx response. Message, Code and Type are set for
// ProviderError; Body is set for UnexpectedError.
type APIError struct {
	Kind    APIErrorKind
	Status  int
	Message string
	Code    string
	Type    string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Kind == ProviderError {
		if e.Code != "" {
			return fmt.Sprintf("deepinfra error (status %d, code %s): %s", e.Status, e.Code, e.Message)
		}
		return fmt.Sprintf("deepinfra error (status %d): %s", e.Status, e.Message)
	}

	snippet := strings.TrimSpace(string(e.Body))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet] + "..."
	}
	return fmt.Sprintf("unexpected response status %d: %s", e.Status, snippet)
}

type errorEnvelope struct {
	Error  json.RawMessage `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

type errorObject struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

type validationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// parseAPIError maps a non-2xx body onto an APIError. Recognised shapes:
// {"error":{message,type,code}}, {"error":"..."}, {"detail":"..."} and
// {"detail":[{loc,msg,type}]}.
func parseAPIError(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if apiErr, ok := fromErrorField(status, env.Error); ok {
			return apiErr
		}
		if apiErr, ok := fromDetailField(status, env.Detail); ok {
			return apiErr
		}
	}

	return &APIError{
		Kind:   UnexpectedError,
		Status: status,
		Body:   body,
	}
}

func fromErrorField(status int, raw json.RawMessage) (*APIError, bool) {
	if isNull(raw) {
		return nil, false
	}

	var obj errorObject
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return &APIError{
			Kind:    ProviderError,
			Status:  status,
			Message: obj.Message,
			Code:    rawCode(obj.Code),
			Type:    obj.Type,
		}, true
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return &APIError{Kind: ProviderError, Status: status, Message: msg}, true
	}
	return nil, false
}

func fromDetailField(status int, raw json.RawMessage) (*APIError, bool) {
	if isNull(raw) {
		return nil, false
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return &APIError{Kind: ProviderError, Status: status, Message: msg}, true
	}

	var details []validationDetail
	if err := json.Unmarshal(raw, &details); err == nil && len(details) > 0 {
		msgs := make([]string, 0, len(details))
		for _, d := range details {
			loc := make([]string, 0, len(d.Loc))
			for _, l := range d.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", strings.Join(loc, "."), d.Msg))
		}
		return &APIError{
			Kind:    ProviderError,
			Status:  status,
			Message: strings.Join(msgs, ", "),
			Type:    details[0].Type,
		}, true
	}
	return nil, false
}

// rawCode renders string and numeric codes alike.
func rawCode(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

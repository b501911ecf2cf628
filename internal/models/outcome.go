package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ConnectionErrorPrefix starts every failure message produced by the transport.
const ConnectionErrorPrefix = "Connection Error: "

// FailureKind classifies why a call did not settle. It is diagnostic only:
// callbacks still branch on the success flag and the message.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureConnection  FailureKind = "connection"
	FailureServer      FailureKind = "server"
	FailureDecode      FailureKind = "decode"
	FailureInvalidCall FailureKind = "invalid_call"
)

// Outcome is the normalized result of one call. A settled outcome carries the
// backend's JSON body verbatim in Payload; a failure outcome carries a
// human-readable Message and a non-empty Failure kind.
type Outcome struct {
	Success bool
	Message string
	Payload json.RawMessage
	Failure FailureKind
}

// NewSettled builds an outcome from a JSON response body. The success and
// message fields are lifted from the body when it is an object; any other JSON
// value (array, string, number) settles as a success.
func NewSettled(body []byte) Outcome {
	payload := make(json.RawMessage, len(body))
	copy(payload, body)

	out := Outcome{Success: true, Payload: payload}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out
	}

	var head struct {
		Success *bool           `json:"success"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return out
	}
	if head.Success != nil {
		out.Success = *head.Success
	}
	if len(head.Message) > 0 {
		var msg string
		if err := json.Unmarshal(head.Message, &msg); err == nil {
			out.Message = msg
		}
	}
	return out
}

// NewFailure builds a failure outcome.
func NewFailure(kind FailureKind, message string) Outcome {
	if kind == FailureNone {
		kind = FailureConnection
	}
	return Outcome{Success: false, Message: message, Failure: kind}
}

// ConnectionFailure formats err the way every transport failure is reported.
func ConnectionFailure(kind FailureKind, err error) Outcome {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	return NewFailure(kind, ConnectionErrorPrefix+text)
}

// IsFailure reports whether the call failed before producing a backend body.
func (o Outcome) IsFailure() bool {
	return o.Failure != FailureNone
}

// Decode unmarshals the payload into v.
func (o Outcome) Decode(v any) error {
	if o.IsFailure() {
		return fmt.Errorf("outcome: %s", o.Message)
	}
	if len(o.Payload) == 0 {
		return errors.New("outcome: empty payload")
	}
	if err := json.Unmarshal(o.Payload, v); err != nil {
		return fmt.Errorf("outcome: decode payload: %w", err)
	}
	return nil
}

// Fields returns the payload as a generic object, or nil when the payload is
// not a JSON object.
func (o Outcome) Fields() map[string]any {
	var fields map[string]any
	if err := o.Decode(&fields); err != nil {
		return nil
	}
	return fields
}

// MarshalJSON renders settled payloads verbatim and failures in the legacy
// {success, message} shape.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.IsFailure() {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{Success: false, Message: o.Message})
	}
	if len(o.Payload) == 0 {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Message string `json:"message,omitempty"`
		}{Success: o.Success, Message: o.Message})
	}
	return []byte(o.Payload), nil
}

package models

import "time"

// CallKind tells whether a method reached the backend or answered locally.
type CallKind string

const (
	CallKindReal CallKind = "real"
	CallKindStub CallKind = "stub"
)

// Handler names recorded on call events.
const (
	HandlerSuccess = "success"
	HandlerFailure = "failure"
)

// CallEvent describes one settled adapter call.
type CallEvent struct {
	CallID     string      `json:"call_id"`
	Method     string      `json:"method"`
	Kind       CallKind    `json:"kind,omitempty"`
	Handler    string      `json:"handler"`
	Success    bool        `json:"success"`
	Failure    FailureKind `json:"failure,omitempty"`
	Message    string      `json:"message,omitempty"`
	DurationMs int64       `json:"duration_ms"`
	Timestamp  time.Time   `json:"timestamp"`
}

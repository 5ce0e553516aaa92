package apierr

import (
	"fmt"

	"github.com/google/uuid"
)

// Error is an API error: a machine code, a client message and an HTTP status.
// The cause is logged but never written to the client. A run-scoped error
// also carries the request ID whose stored result holds the audit trace.
type Error struct {
	code      Code
	message   string
	status    int
	cause     error
	requestID uuid.UUID
	stage     string
}

// New creates an Error without a cause.
func New(code Code, status int, message string) *Error {
	return &Error{code: code, message: message, status: status}
}

// Wrap creates an Error around a cause.
func Wrap(code Code, status int, message string, cause error) *Error {
	return &Error{code: code, message: message, status: status, cause: cause}
}

// ForRun returns a copy of e bound to a pipeline run and the stage it
// stopped at. stage may be empty.
func (e *Error) ForRun(requestID uuid.UUID, stage string) *Error {
	c := *e
	c.requestID = requestID
	c.stage = stage
	return &c
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.code, e.message)
	if e.requestID != uuid.Nil {
		msg += " (request " + e.requestID.String() + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

func (e *Error) Message() string { return e.message }

func (e *Error) Status() int { return e.status }

// RequestID is the run this error belongs to, or uuid.Nil.
func (e *Error) RequestID() uuid.UUID { return e.requestID }

// ErrorResponse is the JSON body written to the client.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      Code       `json:"code"`
	Message   string     `json:"message"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
	Stage     string     `json:"stage,omitempty"`
	ResultURL string     `json:"result_url,omitempty"`
}

// Response returns the wire form. Run-scoped errors point at the stored
// result so the caller can read the trace.
func (e *Error) Response() ErrorResponse {
	body := ErrorBody{Code: e.code, Message: e.message, Stage: e.stage}
	if e.requestID != uuid.Nil {
		id := e.requestID
		body.RequestID = &id
		body.ResultURL = "/api/v1/analyses/" + id.String()
	}
	return ErrorResponse{Error: body}
}

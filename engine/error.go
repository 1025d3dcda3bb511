package engine

import (
	"context"
	"errors"
)

// ErrorKind classifies an EngineError so upstream callers can branch with
// errors.As instead of matching on message strings.
type ErrorKind string

const (
	// ErrorKindTransport covers polling request failures and WebSocket drops.
	ErrorKindTransport ErrorKind = "TransportError"
	// ErrorKindProtocol covers a JSON error object sent by the server.
	ErrorKindProtocol ErrorKind = "ProtocolError"
	// ErrorKindHeartbeatTimeout covers a missed-pong disconnect.
	ErrorKindHeartbeatTimeout ErrorKind = "HeartbeatTimeout"
)

// errMalformedPacket is wrapped by the packet codec when a frame cannot be
// parsed as a typed packet. This is logged and discarded, never surfaced as
// a fatal EngineError.
var errMalformedPacket = errors.New("malformed packet")

// EngineError is the error type surfaced to EngineClient.EngineDidError and
// to the reason string passed through Disconnect/EngineDidClose.
type EngineError struct {
	// Message is a human-readable description of the error.
	Message string

	// Description is the underlying error that caused this one, if any.
	Description error

	// Kind classifies the error for programmatic dispatch.
	Kind ErrorKind

	// Context carries request/response scoped cancellation information, when
	// the error originated from an HTTP round trip.
	Context context.Context
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Description != nil {
		return e.Message + ": " + e.Description.Error()
	}
	return e.Message
}

// Unwrap supports errors.Is/errors.As chain inspection.
func (e *EngineError) Unwrap() []error {
	if e.Description == nil {
		return nil
	}
	return []error{e.Description}
}

// NewTransportError builds an EngineError of kind ErrorKindTransport.
func NewTransportError(reason string, cause error, ctx context.Context) *EngineError {
	return &EngineError{Message: reason, Description: cause, Kind: ErrorKindTransport, Context: ctx}
}

// NewProtocolError builds an EngineError of kind ErrorKindProtocol from a
// server-sent error message.
func NewProtocolError(message string) *EngineError {
	return &EngineError{Message: message, Kind: ErrorKindProtocol}
}

// NewHeartbeatTimeoutError builds the error backing EngineDidClose when
// pongs_missed exceeds pongs_missed_max.
func NewHeartbeatTimeoutError() *EngineError {
	return &EngineError{Message: "Ping timeout", Kind: ErrorKindHeartbeatTimeout}
}

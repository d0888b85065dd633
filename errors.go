package wrtc

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned for operations on a closed or not yet
	// negotiated connection, or on a detached proxy.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidAccess is returned when an operation names a resource that
	// is not owned by, or associated with, the connection.
	ErrInvalidAccess = errors.New("invalid access")

	// ErrTypeMismatch is returned when an argument violates the operation's
	// contract, e.g. replacing an audio sender's track with a video track.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotImplemented is returned by deliberately unimplemented operations.
	ErrNotImplemented = errors.New("not implemented")

	// ErrLoopClosed is returned when posting to a stopped Loop.
	ErrLoopClosed = errors.New("loop closed")

	// ErrNotSupported is returned when a backend cannot serve an operation.
	ErrNotSupported = errors.New("operation not supported")
)

// EngineError is a structured failure reported by the native engine.
type EngineError struct {
	Op      string // bridge operation, e.g. "setRemoteDescription"
	Kind    string // engine error class, e.g. "OperationError"
	Message string
}

func (e *EngineError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("wrtc: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("wrtc: %s: %s: %s", e.Op, e.Kind, e.Message)
}

// engineError attributes err to op. Bridge errors (wrapping one of the
// sentinels above) pass through unchanged.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrInvalidState, ErrInvalidAccess, ErrTypeMismatch, ErrNotImplemented, ErrLoopClosed, ErrNotSupported} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		if ee.Op != "" {
			return ee
		}
		return &EngineError{Op: op, Kind: ee.Kind, Message: ee.Message}
	}
	return &EngineError{Op: op, Kind: "OperationError", Message: err.Error()}
}

func invalidState(op, reason string) error {
	return fmt.Errorf("%w: failed to execute '%s': %s", ErrInvalidState, op, reason)
}

func errClosed(op string) error {
	return invalidState(op, "the peer connection is closed")
}

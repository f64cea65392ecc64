// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// Configuration errors
	ErrInvalidDeviceID = errors.New("netanalyzer: invalid device id")
	ErrInvalidTimeout  = errors.New("netanalyzer: invalid flush interval")
	ErrInvalidFilePath = errors.New("netanalyzer: invalid output file path")
	ErrInvalidFilter   = errors.New("netanalyzer: invalid capture filter")

	// Capture errors
	ErrDeviceOpen  = errors.New("netanalyzer: device open failed")
	ErrCaptureRead = errors.New("netanalyzer: capture read failed")
	ErrFilterApply = errors.New("netanalyzer: filter apply failed")

	// Session errors
	ErrSessionStopped = errors.New("netanalyzer: session stopped")

	// Dissection errors (never queued, only counted)
	ErrPacketTooShort   = errors.New("netanalyzer: packet too short")
	ErrUnsupportedProto = errors.New("netanalyzer: unsupported protocol")

	// Daemon errors
	ErrConfigInvalid    = errors.New("netanalyzer: invalid configuration")
	ErrDaemonNotRunning = errors.New("netanalyzer: daemon not running")
)

// ErrorKind classifies an Error.
type ErrorKind int

const (
	// KindConfig marks problems detected at a configuration boundary.
	KindConfig ErrorKind = iota + 1
	// KindCapture marks failures of the capture collaborator.
	KindCapture
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// Error is a typed session error carrying its kind and the failed operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ConfigError wraps err as a configuration error for op.
func ConfigError(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// CaptureError wraps err as a capture error for op.
func CaptureError(op string, err error) error {
	return &Error{Kind: KindCapture, Op: op, Err: err}
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return kindOf(err) == KindConfig
}

// IsCapture reports whether err is a capture error.
func IsCapture(err error) bool {
	return kindOf(err) == KindCapture
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

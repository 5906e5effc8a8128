package call

import "errors"

// Sentinel errors for call package operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrManagerAlreadyStarted indicates Start was called more than once.
	ErrManagerAlreadyStarted = errors.New("call: manager already started")

	// ErrManagerClosed indicates an operation was attempted after Close.
	ErrManagerClosed = errors.New("call: manager already closed")

	// ErrNoVideoCapture indicates RequestVideo was called with no
	// capture and none was installed earlier.
	ErrNoVideoCapture = errors.New("call: no video capture installed")
)

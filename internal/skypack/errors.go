package skypack

import "errors"

// Errors returned by the client. Operation errors wrap exactly one of these,
// so match them with errors.Is. Cancellation wraps ErrInternal together with
// the context error.
var (
	// ErrIO covers socket bind and send failures. Sends are never retried.
	ErrIO = errors.New("skypack: io error")
	// ErrEncode is returned when a request payload cannot be serialized.
	ErrEncode = errors.New("skypack: serialization error")
	// ErrDecode marks a datagram that is not a valid response record. The
	// receiver drops these; callers never see it from Perform.
	ErrDecode = errors.New("skypack: deserialization error")
	// ErrTimeout is returned when every attempt expired without a response.
	ErrTimeout = errors.New("skypack: request timed out after max retries")
	// ErrInternal is returned when the waiter was dropped without a
	// response: the receiver stopped, the key was reused, the request was
	// canceled, or the request task panicked.
	ErrInternal = errors.New("skypack: internal channel closed")
	// ErrClosed is returned for requests issued after Close.
	ErrClosed = errors.New("skypack: client closed")
)

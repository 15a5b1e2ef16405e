package resume

import (
	"fmt"
	"reflect"
)

// ErrContext supplies the human-readable message for an Error[C]. Each
// resumption failure mode gets its own context type so that callers can
// distinguish them with errors.As instead of string matching.
type ErrContext interface {
	message() string
}

type Error[C ErrContext] struct {
	Inner   error
	Context C
}

func (e Error[C]) Unwrap() error {
	return e.Inner
}

func (e Error[C]) Error() string {
	msg := e.Context.message()
	if e.Inner != nil {
		return fmt.Sprintf("%s: %v", msg, e.Inner.Error())
	}
	return msg
}

func (e Error[C]) Is(other error) bool {
	return reflect.TypeOf(e) == reflect.TypeOf(other)
}

// ErrConnectionError describes a failure of the store's replay stream. No
// code in this module constructs it: FramesStore.ResumeStream's channel
// cannot report an error, and a replay stream that ends is handled as
// ErrConnectionClose.
type ErrConnectionError = Error[ConnectionErrorContext]

type ConnectionErrorContext struct {
	Message string
}

func (c ConnectionErrorContext) message() string {
	return c.Message
}

// ErrConnectionClose is raised when the store's replay stream completes,
// which is treated as an anomaly: the store is meant to stay open for the
// lifetime of the connection.
type ErrConnectionClose = Error[ConnectionCloseContext]

type ConnectionCloseContext struct {
	Message string
}

func (c ConnectionCloseContext) message() string {
	return c.Message
}

// ErrStoreOverflow is raised by the frames store when a single frame is
// larger than its whole retention bound; appends that merely do not fit yet
// wait for released capacity instead. The saver loop turns this into
// dispose(cause).
type ErrStoreOverflow = Error[StoreOverflowContext]

type StoreOverflowContext struct {
	Requested int
	Capacity  int
}

func (c StoreOverflowContext) message() string {
	return fmt.Sprintf("resumable frame store is full (requested %d bytes of %d byte capacity)", c.Requested, c.Capacity)
}

// ErrAppError wraps an application-supplied cause passed to
// sendErrorAndClose. onClose terminates with Inner if it is non-nil.
type ErrAppError = Error[AppErrorContext]

type AppErrorContext struct {
	Message string
}

func (c AppErrorContext) message() string {
	return c.Message
}

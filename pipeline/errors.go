package pipeline

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrShutdownTimeout is returned by Supervisor.Run when processors have
	// not drained the queue within the shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout elapsed before processors drained")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("supervisor already started")

	// ErrSourceExhausted may be returned by Source.Poll to tell the calling
	// poller that no more items will ever be produced. The poller exits
	// cleanly; once every poller has exited the pipeline drains and stops.
	ErrSourceExhausted = errors.New("source exhausted")
)

// ErrorKind classifies an error returned by Source.Poll.
type ErrorKind int

const (
	// KindUnexpected is any error that was not classified by the Source.
	KindUnexpected ErrorKind = iota
	// KindTransient errors (timeouts, throttling) are retried by the poller.
	KindTransient
	// KindFatal errors (revoked credentials) stop intake pipeline-wide.
	KindFatal
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unexpected"
	}
}

// SourceError tags a Source error with its kind.
type SourceError struct {
	Kind ErrorKind
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source error: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable. Transient(nil) is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Kind: KindTransient, Err: err}
}

// Fatal marks err as unrecoverable for the pipeline. Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Kind: KindFatal, Err: err}
}

// KindOf returns the kind of the outermost SourceError in err's chain,
// or KindUnexpected if there is none.
func KindOf(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

// recoverAsError converts a recovered panic value into an error carrying
// the stack trace of the panicking goroutine.
func recoverAsError(r any, who string) error {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return fmt.Errorf("%s panic: %v\nstack trace:\n%s", who, r, buf[:n])
}

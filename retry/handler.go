package retry

import "sync"

// HandlerMode selects how a connection error handler takes part in the
// retry decision.
type HandlerMode int

const (
	// ModeNotify handlers are informed and the retry proceeds regardless.
	ModeNotify HandlerMode = iota + 1
	// ModeContinuation handlers decide through the continuation.
	ModeContinuation
)

func (m HandlerMode) String() string {
	switch m {
	case ModeNotify:
		return "notify"
	case ModeContinuation:
		return "continuation"
	}
	return "none"
}

// Next resumes the retry loop. A nil error schedules the retry; a non-nil
// error ends the request with a *FatalError. Only the first call counts.
type Next func(err error)

// ConnectionErrorHandler observes retryable outcomes. Build one with Notify
// or Continuation; the zero value does nothing.
type ConnectionErrorHandler struct {
	mode         HandlerMode
	notify       func(err error)
	continuation func(err error, next Next)
}

// Notify registers a fire-and-forget observer.
func Notify(fn func(err error)) ConnectionErrorHandler {
	return ConnectionErrorHandler{mode: ModeNotify, notify: fn}
}

// Continuation registers a handler that must call next to resume. A handler
// that never calls next parks the request, and with it the connection queue.
func Continuation(fn func(err error, next Next)) ConnectionErrorHandler {
	return ConnectionErrorHandler{mode: ModeContinuation, continuation: fn}
}

// Mode reports the registered mode.
func (h ConnectionErrorHandler) Mode() HandlerMode {
	return h.mode
}

// invoke runs the handler and calls resume exactly once with the decision.
func (h ConnectionErrorHandler) invoke(err error, resume func(fatal error)) {
	switch {
	case h.mode == ModeContinuation && h.continuation != nil:
		var once sync.Once
		h.continuation(err, func(fatal error) {
			once.Do(func() { resume(fatal) })
		})
	case h.mode == ModeNotify && h.notify != nil:
		h.notify(err)
		resume(nil)
	default:
		resume(nil)
	}
}

package retry

import (
	"errors"
	"fmt"
)

// FatalSource names what ended a request with a FatalError.
type FatalSource string

const (
	// SourceHandler: a continuation handler resumed with an error.
	SourceHandler FatalSource = "handler"
	// SourceWait: the wait override failed.
	SourceWait FatalSource = "wait"
)

// FatalError ends the retry loop without a further attempt. It is delivered
// to the completion callback instead of being retried or dropped.
type FatalError struct {
	Source FatalSource
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s error: %v", e.Source, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

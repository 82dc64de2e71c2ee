package common

import (
	"context"
	"errors"
)

func AsError[T error](err error) (T, bool) {
	var target T
	return target, errors.As(err, &target)
}

// IsDone reports whether err only says that a context is done.
func IsDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

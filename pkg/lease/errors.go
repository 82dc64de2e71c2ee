package lease

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyTaken      = errors.New("channel already taken")
	ErrInvalidToken      = errors.New("invalid lease token")
	ErrNotTaken          = errors.New("channel not taken")
	ErrCaptureInProgress = errors.New("capture in progress")
	ErrOperationFailed   = errors.New("operation failed")

	// ErrCaptureAborted is returned by a Capturer if the capture is over,
	// but did not finish cleanly.
	ErrCaptureAborted = errors.New("capture aborted")

	ErrUnknownChannel = fmt.Errorf("unknown channel: %w", ErrNotTaken)
	ErrDisconnected   = fmt.Errorf("channel disconnected: %w", ErrNotTaken)
	ErrClosed         = fmt.Errorf("coordinator closed: %w", ErrOperationFailed)
)

func operationFailed(cause error) error {
	return fmt.Errorf("%w: %w", ErrOperationFailed, cause)
}

type ErrorKind uint8

const (
	KindNone = ErrorKind(iota)
	KindContention
	KindAuthorization
	KindConflict
	KindFailure
)

// Classify maps every error to one kind of the error taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAlreadyTaken):
		return KindContention
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNotTaken):
		return KindAuthorization
	case errors.Is(err, ErrCaptureInProgress):
		return KindConflict
	default:
		return KindFailure
	}
}

func (this ErrorKind) String() string {
	switch this {
	case KindNone:
		return "none"
	case KindContention:
		return "contention"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindFailure:
		return "failure"
	default:
		return fmt.Sprintf("illegal-error-kind-%d", this)
	}
}

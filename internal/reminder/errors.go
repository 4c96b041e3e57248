package reminder

import (
	"errors"

	"remindbot/internal/timeutil"
)

// Error classes. Callers wrap with %w and test with errors.Is.
var (
	ErrInvalidFormat    = timeutil.ErrInvalidFormat
	ErrUnknownTimezone  = timeutil.ErrUnknownTimezone
	ErrNotFound         = errors.New("not found")
	ErrPastDeadline     = errors.New("deadline is in the past")
	ErrInvalidRange     = errors.New("invalid time range")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDeliveryFailure  = errors.New("delivery failed")
)

// NotFoundError carries what the command layer needs to render guidance.
type NotFoundError struct {
	Token string
	Kind  Kind
	Size  int // items in the view the token was resolved against
}

func (e *NotFoundError) Error() string {
	return "no open " + string(e.Kind) + " matches " + quote(e.Token)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func quote(s string) string { return "\"" + s + "\"" }

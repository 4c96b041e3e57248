package storage

import (
	"errors"
	"fmt"
	"time"

	"remindbot/internal/reminder"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Config configures storage.
//
// Driver values:
//   - "" or "memory": in-process only
//   - "file": JSON snapshot at Path
//   - "sqlite": SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// unavailable marks err as a storage I/O failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("storage %s: %w: %w", op, reminder.ErrStoreUnavailable, err)
}

func notFound(id string) error {
	return fmt.Errorf("item %s: %w", reminder.ShortID(id), reminder.ErrNotFound)
}

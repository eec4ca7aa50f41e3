// Package store provides scan.Store implementations backed by SQLite and by
// process memory.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned when a scan with the same ID was already appended.
var ErrDuplicate = errors.New("scan already stored")

func errDuplicate(id string) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, id)
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older builds may use RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSnapshot is returned while the daemon has not completed its first poll.
var ErrNoSnapshot = errors.New("daemon has no snapshot yet")

// APIError is a non-2xx answer from the daemon. Code is the snake_case
// error of the JSON body.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("daemon responded with status %d", e.Status)
	}
	return fmt.Sprintf("daemon responded with status %d: %s", e.Status, e.Code)
}

// Is lets errors.Is(err, ErrNoSnapshot) match the daemon's 503.
func (e *APIError) Is(target error) bool {
	return target == ErrNoSnapshot && e.Code == "no_snapshot_yet"
}

// EventsOptions filters GetEvents.
type EventsOptions struct {
	Limit int
	Types []string
	From  time.Time
	To    time.Time
}

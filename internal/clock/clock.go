// Package clock supplies the current time so "today" can be fixed in tests.
package clock

import (
	"sync"
	"time"

	"github.com/starford/daymark/internal/models"
)

type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always reports the same instant until Set is called.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(now time.Time) *Fixed { return &Fixed{now: now} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Today returns the calendar date of c.Now() in its own location.
func Today(c Clock) models.Date {
	return models.DateOf(c.Now())
}

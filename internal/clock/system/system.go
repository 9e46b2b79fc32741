// Package system provides the wall clock and a fixed clock for tests.
package system

import (
	"time"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

var (
	_ crawler.Clock = Clock{}
	_ crawler.Clock = Fixed{}
)

// Clock implements crawler.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}

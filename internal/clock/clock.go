// Package clock abstracts time for services so tests can pin it.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock returns wall time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock pinned to one instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

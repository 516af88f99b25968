// Package clock abstracts time so subscription expiry and daily free-tier
// windows are testable.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

package domain

import "time"

// TimeProvider abstracts the wall clock so reset boundaries can be tested.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// SystemTime returns a TimeProvider backed by time.Now.
func SystemTime() TimeProvider { return realTimeProvider{} }

package resilience

import "time"

// Clock abstracts the time source so state transitions can be tested
// without sleeping
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

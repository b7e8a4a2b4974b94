package floodgate

import "time"

// Clock abstracts the time source used for refill computations.
// Production code uses the system clock; tests substitute a fake
// so refill behavior can be asserted without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock Clock used by default.
func SystemClock() Clock { return systemClock{} }

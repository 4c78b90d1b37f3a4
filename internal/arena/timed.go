package arena

import "time"

// Timed pairs a value with the instant it entered its current list.
type Timed[T any] struct {
	Value T
	At    time.Time
}

// Stamp wraps v with the time at.
func Stamp[T any](v T, at time.Time) Timed[T] {
	return Timed[T]{Value: v, At: at}
}

// Older reports whether the value has been in its list for strictly longer than d as of now.
func (t Timed[T]) Older(now time.Time, d time.Duration) bool {
	return now.Sub(t.At) > d
}

package async

import "github.com/alanbriolat/media-fetch/generic"

// Run will run a function in a goroutine, returning its result via a channel.
func Run[T any](f func() T) <-chan T {
	c := make(chan T)
	go func() {
		c <- f()
	}()
	return c
}

// RunResult will run a function in a goroutine, returning its (value, error) pair as a generic.Result via a channel.
func RunResult[T any](f func() (T, error)) <-chan generic.Result[T] {
	c := make(chan generic.Result[T], 1)
	go func() {
		value, err := f()
		c <- generic.NewResult(value, err)
	}()
	return c
}

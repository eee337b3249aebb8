package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// ErrorCheck adapts a status accessor, such as the persistence degraded
// signal, into a CheckFunc.
func ErrorCheck(status func() error) CheckFunc {
	return func(context.Context) error {
		if err := status(); err != nil {
			return errors.Wrap(err, "degraded")
		}
		return nil
	}
}

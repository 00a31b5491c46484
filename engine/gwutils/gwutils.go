package gwutils

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%p panic: %v", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatly until there is no panic
func RepeatUntilPanicless(f func()) {
	for !RunPanicless(f) {
	}
}

// CatchPanic runs f and converts a panic into an error carrying the stack where it was recovered
func CatchPanic(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = errors.Wrap(perr, "panic")
			} else {
				err = errors.Errorf("panic: %v", r)
			}
		}
	}()

	return f()
}

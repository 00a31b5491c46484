package gwutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestRunPanicless(t *testing.T) {
	if !RunPanicless(func() {
		panic(1)
	}) {
		t.Errorf("should report panic")
	}
	if !RunPanicless(func() {
		panic(fmt.Errorf("bad"))
	}) {
		t.Errorf("should report panic")
	}
	if RunPanicless(func() {}) {
		t.Errorf("should not report panic")
	}
}

func TestCatchPanic(t *testing.T) {
	cause := errors.New("stale handle")
	err := CatchPanic(func() error {
		panic(cause)
	})
	if errors.Cause(err) != cause {
		t.Errorf("cause should be preserved, got %v", err)
	}

	err = CatchPanic(func() error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := CatchPanic(func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

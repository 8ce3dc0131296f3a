package tester

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func fail(t *testing.T, fallback string, msgAndArgs ...any) {
	t.Helper()
	if len(msgAndArgs) == 0 {
		t.Fatalf("%s", fallback)
		return
	}
	if format, ok := msgAndArgs[0].(string); ok {
		t.Fatalf(fallback+": "+format, msgAndArgs[1:]...)
		return
	}
	t.Fatalf("%s: %v", fallback, msgAndArgs[0])
}

// Eq asserts that got equals want, using reflect.DeepEqual for
// non-comparable types.
func Eq[T any](t *testing.T, got, want T, msgAndArgs ...any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		fail(t, fmt.Sprintf("got=%v want=%v", got, want), msgAndArgs...)
	}
}

// True asserts that cond is true.
func True(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	if !cond {
		fail(t, "expected condition to be true", msgAndArgs...)
	}
}

// False asserts that cond is false.
func False(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	if cond {
		fail(t, "expected condition to be false", msgAndArgs...)
	}
}

// NoErr asserts that err is nil.
func NoErr(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	if err != nil {
		fail(t, fmt.Sprintf("unexpected error: %v", err), msgAndArgs...)
	}
}

// ErrIs asserts that errors.Is(err, target).
func ErrIs(t *testing.T, err, target error, msgAndArgs ...any) {
	t.Helper()
	if !errors.Is(err, target) {
		fail(t, fmt.Sprintf("error mismatch: got %v, want %v", err, target), msgAndArgs...)
	}
}

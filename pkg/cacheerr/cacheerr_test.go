package cacheerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageIncludesWrappedErr(t *testing.T) {
	wrapped := errors.New("connection refused")
	err := L2Unavailable("get", wrapped)

	msg := err.Error()
	if !errors.Is(err, wrapped) {
		t.Errorf("Unwrap() chain does not reach %v", wrapped)
	}
	want := fmt.Sprintf("[%s] distributed store unavailable during get: %v", CodeL2Unavailable, wrapped)
	if msg != want {
		t.Errorf("Error() = %q, want %q", msg, want)
	}
}

func TestErrorMessageWithoutWrappedErr(t *testing.T) {
	err := EntryTooLarge("k1", 100, 50)
	want := fmt.Sprintf("[%s] entry %q is 100 bytes, exceeds max entry size 50", CodeEntryTooLarge, "k1")
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := BusUnavailable(errors.New("boom"))
	if !Is(err, CodeBusUnavailable) {
		t.Errorf("Is(err, CodeBusUnavailable) = false, want true")
	}
	if Is(err, CodeL2Unavailable) {
		t.Errorf("Is(err, CodeL2Unavailable) = true, want false")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), CodeCancelled) {
		t.Errorf("Is() on a plain error = true, want false")
	}
}

func TestCancelledWrapsContextCanceled(t *testing.T) {
	err := Cancelled("set")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Cancelled() does not unwrap to context.Canceled")
	}
}

package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedCode(t *testing.T) {
	base := Validation("target duration must be positive")
	wrapped := fmt.Errorf("creating challenge: %w", base)

	if !Is(wrapped, CodeValidation) {
		t.Fatal("expected wrapped validation error to keep its code")
	}
	if Is(wrapped, CodeNotFound) {
		t.Fatal("validation error must not match the not-found code")
	}
}

func TestIsRejectsPlainErrors(t *testing.T) {
	if Is(errors.New("boom"), CodeInternal) {
		t.Fatal("plain errors carry no code")
	}
	if Is(nil, CodeInternal) {
		t.Fatal("nil carries no code")
	}
}

func TestConstructorsCarryTheirCode(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		code Code
	}{
		{"new", New(CodeConflict, "device already registered"), CodeConflict},
		{"forbidden", Forbidden("not your achievement"), CodeForbidden},
		{"not found", NotFound("invite"), CodeNotFound},
		{"integrity", Integrity("dangling participant %s", "abc"), CodeIntegrity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !Is(tc.err, tc.code) {
				t.Fatalf("expected code %s, got %s", tc.code, tc.err.Code)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeInternal, "failed to load challenge", cause)

	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
	if err.Error() != "failed to load challenge: connection reset" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

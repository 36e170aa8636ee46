package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeTableBidirectional(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrInternal, 5000},
		{ErrUnauthorized, 4010},
		{ErrTokenMalformed, 4011},
		{ErrTokenExpired, 4012},
		{ErrAuthorizationRequired, 4013},
		{ErrInvalidAuthHeader, 4014},
		{ErrSignatureAuthNotSupported, 4006},
		{ErrUnderInvalidation, 4015},
		{ErrUserNotFound, 4041},
		{ErrUserExists, 4070},
	}

	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.code {
			t.Errorf("CodeOf(%v) = %d, want %d", tc.err, got, tc.code)
		}
		if got := ErrOf(tc.code); !errors.Is(got, tc.err) {
			t.Errorf("ErrOf(%d) = %v, want %v", tc.code, got, tc.err)
		}
	}
}

func TestAlgorithmMismatchSharesMalformedCode(t *testing.T) {
	// The distinction is internal; the wire collapses both to one
	// "invalid token" class.
	if CodeOf(ErrTokenAlgorithm) != CodeOf(ErrTokenMalformed) {
		t.Errorf("codes differ: %d vs %d", CodeOf(ErrTokenAlgorithm), CodeOf(ErrTokenMalformed))
	}
	if !errors.Is(ErrOf(4011), ErrTokenMalformed) {
		t.Errorf("ErrOf(4011) = %v, want ErrTokenMalformed", ErrOf(4011))
	}
}

func TestInvalidationCodesCarryReason(t *testing.T) {
	cases := []struct {
		reason Reason
		code   int
	}{
		{ReasonPasswordChanged, 40151},
		{ReasonPermissionChanged, 40152},
		{ReasonTooManyAuthFailures, 40153},
		{ReasonUserDeleted, 40154},
		{ReasonUserRequest, 40155},
	}

	for _, tc := range cases {
		err := &InvalidationError{Reason: tc.reason}
		if got := CodeOf(err); got != tc.code {
			t.Errorf("CodeOf(%s) = %d, want %d", tc.reason, got, tc.code)
		}

		back := ErrOf(tc.code)
		var inv *InvalidationError
		if !errors.As(back, &inv) || inv.Reason != tc.reason {
			t.Errorf("ErrOf(%d) = %v, want reason %s", tc.code, back, tc.reason)
		}
		if !errors.Is(err, ErrUnderInvalidation) {
			t.Errorf("InvalidationError(%s) does not unwrap to ErrUnderInvalidation", tc.reason)
		}
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrInternal, http.StatusInternalServerError},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrTokenMalformed, http.StatusUnauthorized},
		{ErrTokenAlgorithm, http.StatusUnauthorized},
		{&InvalidationError{Reason: ReasonUserRequest}, http.StatusUnauthorized},
		{ErrAuthorizationRequired, http.StatusUnauthorized},
		{ErrInvalidAuthHeader, http.StatusBadRequest},
		{ErrSignatureAuthNotSupported, http.StatusBadRequest},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrUserExists, http.StatusConflict},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.status {
			t.Errorf("StatusOf(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestWrappedErrorsKeepTheirCode(t *testing.T) {
	wrapped := fmt.Errorf("handler context: %w", ErrTokenExpired)
	if got := CodeOf(wrapped); got != 4012 {
		t.Errorf("CodeOf(wrapped) = %d, want 4012", got)
	}
	if got := StatusOf(wrapped); got != http.StatusUnauthorized {
		t.Errorf("StatusOf(wrapped) = %d, want 401", got)
	}
}

func TestUnknownCodeAndError(t *testing.T) {
	if got := ErrOf(99999); !errors.Is(got, ErrInternal) {
		t.Errorf("ErrOf(99999) = %v, want ErrInternal", got)
	}
	if got := CodeOf(errors.New("mystery")); got != 5000 {
		t.Errorf("CodeOf(mystery) = %d, want 5000", got)
	}
}

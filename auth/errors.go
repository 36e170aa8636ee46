package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInternal covers crypto, cache and storage faults. It is the
	// only error class logged server-side with detail; everything else
	// below is a routine, expected outcome.
	ErrInternal = errors.New("internal error")
	// ErrUnauthorized is returned on bad login credentials. Unknown
	// email and wrong password collapse into it so callers cannot
	// enumerate accounts.
	ErrUnauthorized = errors.New("password does not match or user does not exist")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("auth token expired")
	// ErrTokenMalformed is returned when a token is structurally or
	// cryptographically invalid.
	ErrTokenMalformed = errors.New("auth token invalid")
	// ErrTokenAlgorithm is returned when a token declares a signing
	// algorithm other than the configured one. Shares a wire code with
	// ErrTokenMalformed: the distinction matters for tests and logs,
	// not for clients.
	ErrTokenAlgorithm = errors.New("auth token algorithm mismatch")
	// ErrUnderInvalidation is the base error for tokens that predate
	// an active revocation record. Returned wrapped in
	// InvalidationError, which carries the reason.
	ErrUnderInvalidation = errors.New("auth token under invalidation")
	// ErrAuthorizationRequired is returned when neither header nor
	// cookie carries a credential.
	ErrAuthorizationRequired = errors.New("this route requires authorization but no header or cookie was provided")
	// ErrInvalidAuthHeader is returned for malformed Authorization
	// headers (wrong scheme, wrong segment count, empty value).
	ErrInvalidAuthHeader = errors.New("invalid authorization header, expected `Bearer <token>`")
	// ErrSignatureAuthNotSupported is returned for the recognized but
	// unsupported `Signature` scheme, so clients get actionable
	// guidance instead of a generic format error.
	ErrSignatureAuthNotSupported = errors.New("signature based authentication is not supported")
	// ErrUserNotFound is returned by user-facing lookups.
	ErrUserNotFound = errors.New("user could not be found")
	// ErrUserExists is returned when signup collides with an existing
	// email or username.
	ErrUserExists = errors.New("user already exists, maybe try a different email")
)

// InvalidationError reports that the presented token was issued no
// later than an active revocation record. Reason is exposed so clients
// can prompt an appropriate re-auth message.
type InvalidationError struct {
	Reason Reason
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("auth token under invalidation: %s", e.Reason)
}

func (e *InvalidationError) Unwrap() error { return ErrUnderInvalidation }

// wireEntry ties an error kind to its numeric wire code and HTTP
// status. The table is the single source of truth for both directions
// of the mapping (no reflection-based dispatch).
type wireEntry struct {
	err    error
	code   int
	status int
}

const codeInternal = 5000

var wireTable = []wireEntry{
	{ErrInternal, codeInternal, http.StatusInternalServerError},
	{ErrUnauthorized, 4010, http.StatusUnauthorized},
	{ErrTokenMalformed, 4011, http.StatusUnauthorized},
	{ErrTokenAlgorithm, 4011, http.StatusUnauthorized},
	{ErrTokenExpired, 4012, http.StatusUnauthorized},
	{ErrAuthorizationRequired, 4013, http.StatusUnauthorized},
	{ErrInvalidAuthHeader, 4014, http.StatusBadRequest},
	{ErrSignatureAuthNotSupported, 4006, http.StatusBadRequest},
	{ErrUnderInvalidation, 4015, http.StatusUnauthorized},
	{ErrUserNotFound, 4041, http.StatusNotFound},
	{ErrUserExists, 4070, http.StatusConflict},
}

// Under-invalidation responses refine the base 4015 kind with the
// revocation reason: code 40150 + reason index.
var reasonOffsets = map[Reason]int{
	ReasonPasswordChanged:     1,
	ReasonPermissionChanged:   2,
	ReasonTooManyAuthFailures: 3,
	ReasonUserDeleted:         4,
	ReasonUserRequest:         5,
}

var errByCode = func() map[int]error {
	m := make(map[int]error, len(wireTable)+len(reasonOffsets))
	for _, e := range wireTable {
		// First entry wins for shared codes (4011 → ErrTokenMalformed).
		if _, ok := m[e.code]; !ok {
			m[e.code] = e.err
		}
	}
	for reason, off := range reasonOffsets {
		m[4015*10+off] = &InvalidationError{Reason: reason}
	}
	return m
}()

// CodeOf returns the numeric wire code for err, following wrapped
// errors. Unknown errors map to the internal code.
func CodeOf(err error) int {
	var inv *InvalidationError
	if errors.As(err, &inv) {
		if off, ok := reasonOffsets[inv.Reason]; ok {
			return 4015*10 + off
		}
	}
	for _, e := range wireTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return codeInternal
}

// ErrOf is the inverse of CodeOf. Unknown codes map to ErrInternal.
func ErrOf(code int) error {
	if err, ok := errByCode[code]; ok {
		return err
	}
	return ErrInternal
}

// StatusOf returns the HTTP status for err. Unknown errors are
// internal.
func StatusOf(err error) int {
	for _, e := range wireTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

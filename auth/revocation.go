package auth

import (
	"encoding/json"
	"fmt"
)

// Reason is the closed set of revocation causes. The value is embedded
// in cached records and surfaced to clients, so the strings are part of
// the wire contract.
type Reason string

const (
	ReasonPasswordChanged     Reason = "password_changed"
	ReasonPermissionChanged   Reason = "permission_changed"
	ReasonTooManyAuthFailures Reason = "too_many_auth_failures"
	ReasonUserDeleted         Reason = "user_deleted"
	ReasonUserRequest         Reason = "user_request"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonPasswordChanged, ReasonPermissionChanged,
		ReasonTooManyAuthFailures, ReasonUserDeleted, ReasonUserRequest:
		return true
	}
	return false
}

// Record is the per-subject revocation fact: every token issued at or
// before Date (plus the grace window) is invalid for the given reason.
// At most one live record exists per subject; a new write replaces the
// old one and restarts its TTL.
type Record struct {
	// Date is the unix second the revocation was recorded.
	Date int64 `json:"date"`
	// Reason explains the revocation to the client.
	Reason Reason `json:"reason"`
}

// revocationKeyPrefix namespaces revocation records in the shared
// cache.
const revocationKeyPrefix = "invalidation/"

func revocationKey(subject string) string {
	return revocationKeyPrefix + subject
}

func encodeRecord(rec Record) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeRecord(payload string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return rec, err
	}
	if !rec.Reason.Valid() {
		return rec, fmt.Errorf("unknown invalidation reason %q", rec.Reason)
	}
	return rec, nil
}

// Package metrics counts authentication outcomes with lock-free atomic
// counters. Counters are monotonic for the process lifetime; Snapshot
// gives a consistent-enough read for health endpoints and tests.
package metrics

import "sync/atomic"

// ID enumerates the counters.
type ID uint8

const (
	LoginSuccess ID = iota
	LoginFailure
	TokenIssued
	VerifySuccess
	VerifyExpired
	VerifyRevoked
	VerifyInvalid
	RevocationRecorded
	InternalFault

	idCount
)

// Metrics is a fixed set of counters, safe for concurrent use. The zero
// value is not usable; construct with New.
type Metrics struct {
	counters [idCount]atomic.Uint64
}

// New returns a zeroed counter set.
func New() *Metrics {
	return &Metrics{}
}

// Inc increments a counter. Unknown IDs are ignored.
func (m *Metrics) Inc(id ID) {
	if m == nil || id >= idCount {
		return
	}
	m.counters[id].Add(1)
}

// Get reads a single counter.
func (m *Metrics) Get(id ID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter at roughly the same instant.
type Snapshot struct {
	LoginSuccess       uint64
	LoginFailure       uint64
	TokenIssued        uint64
	VerifySuccess      uint64
	VerifyExpired      uint64
	VerifyRevoked      uint64
	VerifyInvalid      uint64
	RevocationRecorded uint64
	InternalFault      uint64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		LoginSuccess:       m.Get(LoginSuccess),
		LoginFailure:       m.Get(LoginFailure),
		TokenIssued:        m.Get(TokenIssued),
		VerifySuccess:      m.Get(VerifySuccess),
		VerifyExpired:      m.Get(VerifyExpired),
		VerifyRevoked:      m.Get(VerifyRevoked),
		VerifyInvalid:      m.Get(VerifyInvalid),
		RevocationRecorded: m.Get(RevocationRecorded),
		InternalFault:      m.Get(InternalFault),
	}
}

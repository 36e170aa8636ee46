// Package jwt implements the access token codec: EdDSA-signed compact
// tokens carrying the user's identity claims.
//
// The codec is pure. It performs no I/O and holds no mutable state, so a
// single Codec is shared by every request. Verification failures are
// classified into three sentinel errors (ErrExpired, ErrMalformed,
// ErrAlgorithm) that the auth service maps onto its public taxonomy.
package jwt

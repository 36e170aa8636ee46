package auth

import (
	"context"
	"errors"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tobiasfell/quill/cache"
	"github.com/tobiasfell/quill/internal/metrics"
	"github.com/tobiasfell/quill/jwt"
	"github.com/tobiasfell/quill/store"
)

const (
	// TokenLifetime is the fixed validity window of an access token.
	TokenLifetime = time.Hour
	// RevocationTTLMargin extends a revocation record's TTL past the
	// token lifetime so a record never expires before the last token
	// it could affect.
	RevocationTTLMargin = 30 * time.Second
	// RevocationGrace shields tokens issued concurrently with a
	// revocation: a token is only rejected when the record predates
	// its issuance by more than this margin.
	RevocationGrace = 10 * time.Second
)

// PasswordHasher is the opaque credential hashing capability. The
// production implementation is password.Hasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// Options carries the collaborators for NewService. All fields except
// Metrics, CryptoParallelism and Now are required.
type Options struct {
	Users     store.UserStore
	Cache     cache.KV
	Codec     *jwt.Codec
	Passwords PasswordHasher
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// CryptoParallelism bounds concurrent password hashing and token
	// signing/verification. Defaults to GOMAXPROCS.
	CryptoParallelism int64

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service orchestrates credential verification, token issuance, token
// verification and revocation-record reads/writes. It holds no mutable
// state of its own; the revocation cache is the only shared mutable
// resource and is concurrency-safe by construction.
type Service struct {
	users     store.UserStore
	kv        cache.KV
	codec     *jwt.Codec
	passwords PasswordHasher
	log       *zap.Logger
	metrics   *metrics.Metrics
	crypto    *semaphore.Weighted
	now       func() time.Time
}

// NewService validates the collaborators and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("auth: revocation cache is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	if opts.Passwords == nil {
		return nil, errors.New("auth: password hasher is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth: logger is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.CryptoParallelism <= 0 {
		opts.CryptoParallelism = int64(runtime.GOMAXPROCS(0))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		users:     opts.Users,
		kv:        opts.Cache,
		codec:     opts.Codec,
		passwords: opts.Passwords,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		crypto:    semaphore.NewWeighted(opts.CryptoParallelism),
		now:       opts.Now,
	}, nil
}

// Authenticate checks email+password against the credential store and,
// on match, issues a fresh token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Inc(metrics.LoginFailure)
			return "", ErrUnauthorized
		}
		return "", s.internal("credential lookup failed", err)
	}

	match, err := s.VerifyPassword(ctx, plaintext, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !match {
		s.metrics.Inc(metrics.LoginFailure)
		return "", ErrUnauthorized
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return "", err
	}
	s.metrics.Inc(metrics.LoginSuccess)
	return token, nil
}

// HashPassword derives a storable hash from plaintext. Like every other
// argon2 call it runs under the crypto bound, so callers outside this
// package (signup, password change) cannot saturate the process with
// unbounded hashing.
func (s *Service) HashPassword(ctx context.Context, plaintext string) (string, error) {
	var hash string
	err := s.withCrypto(ctx, func() error {
		var herr error
		hash, herr = s.passwords.Hash(plaintext)
		return herr
	})
	if err != nil {
		return "", s.internal("password hashing failed", err)
	}
	return hash, nil
}

// VerifyPassword checks plaintext against a stored hash under the
// crypto bound. A malformed stored hash is an internal fault, not a
// mismatch.
func (s *Service) VerifyPassword(ctx context.Context, plaintext, hash string) (bool, error) {
	var match bool
	err := s.withCrypto(ctx, func() error {
		var verr error
		match, verr = s.passwords.Verify(plaintext, hash)
		return verr
	})
	if err != nil {
		return false, s.internal("password verification failed", err)
	}
	return match, nil
}

// IssueToken signs a token for user with issued-at now and expiry
// now+TokenLifetime. Signing faults never leak details to the caller.
func (s *Service) IssueToken(ctx context.Context, user *store.User) (string, error) {
	claims := jwt.NewUserClaims(user, s.now(), TokenLifetime)

	var token string
	err := s.withCrypto(ctx, func() error {
		var serr error
		token, serr = s.codec.Issue(claims)
		return serr
	})
	if err != nil {
		return "", s.internal("token signing failed", err, zap.String("sub", user.ID))
	}

	s.metrics.Inc(metrics.TokenIssued)
	return token, nil
}

// RecordInvalidation writes the revocation record for subject,
// replacing any prior record and restarting its TTL (last write wins).
func (s *Service) RecordInvalidation(ctx context.Context, subject string, reason Reason) error {
	if !reason.Valid() {
		return s.internal("invalid revocation reason", errors.New(string(reason)), zap.String("sub", subject))
	}

	payload, err := encodeRecord(Record{Date: s.now().Unix(), Reason: reason})
	if err != nil {
		return s.internal("revocation record encode failed", err, zap.String("sub", subject))
	}

	ttl := TokenLifetime + RevocationTTLMargin
	if err := s.kv.SetTTL(ctx, revocationKey(subject), payload, ttl); err != nil {
		return s.internal("revocation record write failed", err, zap.String("sub", subject))
	}

	s.metrics.Inc(metrics.RevocationRecorded)
	return nil
}

// VerifyToken decodes and verifies token, re-checks expiry against the
// wall clock, and consults the revocation cache. Cache unavailability
// fails closed: a token that cannot be checked is not accepted.
func (s *Service) VerifyToken(ctx context.Context, token string) (*jwt.UserClaims, error) {
	var claims *jwt.UserClaims
	err := s.withCrypto(ctx, func() error {
		var verr error
		claims, verr = s.codec.Verify(token)
		return verr
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpired):
			s.metrics.Inc(metrics.VerifyExpired)
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrAlgorithm):
			s.metrics.Inc(metrics.VerifyInvalid)
			return nil, ErrTokenAlgorithm
		case errors.Is(err, jwt.ErrMalformed):
			s.metrics.Inc(metrics.VerifyInvalid)
			return nil, ErrTokenMalformed
		default:
			return nil, s.internal("token verification failed", err)
		}
	}

	// The codec already enforced exp structurally; re-check against
	// our own clock in case the two disagree.
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		s.metrics.Inc(metrics.VerifyExpired)
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt == nil {
		s.metrics.Inc(metrics.VerifyInvalid)
		return nil, ErrTokenMalformed
	}

	rec, found, err := s.invalidationFor(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if found {
		graceSec := int64(RevocationGrace / time.Second)
		if rec.Date+graceSec >= claims.IssuedAt.Unix() {
			s.metrics.Inc(metrics.VerifyRevoked)
			return nil, &InvalidationError{Reason: rec.Reason}
		}
		// Issued strictly after the revocation (plus grace) took
		// effect: the token postdates the fact and stays valid.
	}

	s.metrics.Inc(metrics.VerifySuccess)
	return claims, nil
}

// invalidationFor reads the revocation record for subject. found is
// false on a clean miss; any cache or decode fault is an internal
// error, never treated as "not revoked".
func (s *Service) invalidationFor(ctx context.Context, subject string) (Record, bool, error) {
	payload, err := s.kv.Get(ctx, revocationKey(subject))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Record{}, false, nil
		}
		return Record{}, false, s.internal("revocation lookup failed", err, zap.String("sub", subject))
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		return Record{}, false, s.internal("corrupt revocation record", err, zap.String("sub", subject))
	}
	return rec, true, nil
}

// withCrypto runs fn under the CPU-bound work semaphore. Argon2 and
// Ed25519 saturate a core each; the bound keeps concurrent requests
// from starving I/O-bound handlers. Acquire respects ctx, which gives
// the request path its timeout.
func (s *Service) withCrypto(ctx context.Context, fn func() error) error {
	if err := s.crypto.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.crypto.Release(1)
	return fn()
}

func (s *Service) internal(msg string, err error, fields ...zap.Field) error {
	s.metrics.Inc(metrics.InternalFault)
	s.log.Error(msg, append(fields, zap.Error(err))...)
	return ErrInternal
}

// Metrics exposes the service's counters for health reporting.
func (s *Service) Metrics() metrics.Snapshot {
	return s.metrics.Snapshot()
}

package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tobiasfell/quill/cache"
	"github.com/tobiasfell/quill/internal/metrics"
	"github.com/tobiasfell/quill/jwt"
	"github.com/tobiasfell/quill/password"
	"github.com/tobiasfell/quill/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc    *Service
	mr     *miniredis.Miniredis
	users  *store.Memory
	clock  *fakeClock
	hasher *password.Hasher
	meter  *metrics.Metrics
}

// cheapParams keeps argon2 fast in tests; the cost does not change any
// behavior under test.
var cheapParams = password.Params{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv, err := cache.NewRedis(context.Background(), client)
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	codec, err := jwt.NewCodec(jwt.Config{PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	hasher, err := password.NewHasher(cheapParams)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	users := store.NewMemory()
	clock := &fakeClock{t: time.Now().Truncate(time.Second)}
	meter := metrics.New()

	svc, err := NewService(Options{
		Users:     users,
		Cache:     kv,
		Codec:     codec,
		Passwords: hasher,
		Logger:    zap.NewNop(),
		Metrics:   meter,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	return &fixture{svc: svc, mr: mr, users: users, clock: clock, hasher: hasher, meter: meter}
}

func (f *fixture) seedUser(t *testing.T, email, plaintext string) *store.User {
	t.Helper()

	hash, err := f.hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	user := &store.User{
		Email:        email,
		Username:     "u-" + email,
		PasswordHash: hash,
		Role:         store.RoleCommon,
	}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return user
}

func TestAuthenticateIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.Authenticate(ctx, "ana@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	claims, err := f.svc.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.Subject != user.ID {
		t.Errorf("subject = %q, want %q", claims.Subject, user.ID)
	}
	if claims.Email != user.Email || claims.Username != user.Username {
		t.Errorf("identity claims mismatch: %+v", claims)
	}
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "ana@example.com", "correct horse battery")

	// Unknown email and wrong password must be the same error, so
	// callers cannot probe which emails exist.
	if _, err := f.svc.Authenticate(ctx, "nobody@example.com", "whatever-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email: %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Authenticate(ctx, "ana@example.com", "wrong password!"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: %v, want ErrUnauthorized", err)
	}
}

func TestVerifyTokenExpiryWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	f.clock.Advance(TokenLifetime - time.Second)
	if _, err := f.svc.VerifyToken(ctx, token); err != nil {
		t.Fatalf("VerifyToken one second before expiry failed: %v", err)
	}

	f.clock.Advance(time.Second)
	if _, err := f.svc.VerifyToken(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("VerifyToken at expiry = %v, want ErrTokenExpired", err)
	}
}

func TestRevocationOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	old, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	f.clock.Advance(time.Minute)
	if err := f.svc.RecordInvalidation(ctx, user.ID, ReasonPasswordChanged); err != nil {
		t.Fatalf("RecordInvalidation failed: %v", err)
	}

	_, err = f.svc.VerifyToken(ctx, old)
	if !errors.Is(err, ErrUnderInvalidation) {
		t.Fatalf("VerifyToken = %v, want ErrUnderInvalidation", err)
	}
	var inv *InvalidationError
	if !errors.As(err, &inv) || inv.Reason != ReasonPasswordChanged {
		t.Fatalf("reason = %v, want password_changed", err)
	}

	// A token issued inside the grace window still counts as revoked.
	f.clock.Advance(RevocationGrace / 2)
	inside, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := f.svc.VerifyToken(ctx, inside); !errors.Is(err, ErrUnderInvalidation) {
		t.Fatalf("token inside grace = %v, want ErrUnderInvalidation", err)
	}

	// Strictly past record time + grace: the token postdates the
	// revocation and must verify.
	f.clock.Advance(RevocationGrace/2 + time.Second)
	fresh, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := f.svc.VerifyToken(ctx, fresh); err != nil {
		t.Fatalf("token after grace = %v, want success", err)
	}

	// The old token stays dead.
	if _, err := f.svc.VerifyToken(ctx, old); !errors.Is(err, ErrUnderInvalidation) {
		t.Fatalf("old token = %v, want ErrUnderInvalidation", err)
	}
}

func TestInvalidationLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	f.clock.Advance(time.Minute)
	if err := f.svc.RecordInvalidation(ctx, user.ID, ReasonPasswordChanged); err != nil {
		t.Fatalf("RecordInvalidation failed: %v", err)
	}
	if err := f.svc.RecordInvalidation(ctx, user.ID, ReasonUserRequest); err != nil {
		t.Fatalf("RecordInvalidation failed: %v", err)
	}

	_, err = f.svc.VerifyToken(ctx, token)
	var inv *InvalidationError
	if !errors.As(err, &inv) || inv.Reason != ReasonUserRequest {
		t.Fatalf("reason = %v, want user_request (last write wins)", err)
	}
	if got := CodeOf(err); got != 40155 {
		t.Errorf("CodeOf = %d, want 40155", got)
	}
}

func TestRevocationRecordOutlivesAffectedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if err := f.svc.RecordInvalidation(ctx, user.ID, ReasonUserDeleted); err != nil {
		t.Fatalf("RecordInvalidation failed: %v", err)
	}

	// Just before the record's TTL lapses it must still apply.
	f.mr.FastForward(TokenLifetime + RevocationTTLMargin - time.Second)
	if _, err := f.svc.VerifyToken(ctx, token); !errors.Is(err, ErrUnderInvalidation) {
		t.Fatalf("VerifyToken before TTL = %v, want ErrUnderInvalidation", err)
	}

	// After the TTL the record is gone; any token it could have
	// affected is expired by then on the service clock, so dropping
	// the record loses nothing. Here only the cache clock advanced,
	// which lets us observe the record's own expiry in isolation.
	f.mr.FastForward(2 * time.Second)
	if _, err := f.svc.VerifyToken(ctx, token); err != nil {
		t.Fatalf("VerifyToken after record expiry = %v, want success", err)
	}
}

func TestVerifyFailsClosedWhenCacheDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	f.mr.Close()

	if _, err := f.svc.VerifyToken(ctx, token); !errors.Is(err, ErrInternal) {
		t.Fatalf("VerifyToken with cache down = %v, want ErrInternal", err)
	}
	if err := f.svc.RecordInvalidation(ctx, user.ID, ReasonUserRequest); !errors.Is(err, ErrInternal) {
		t.Fatalf("RecordInvalidation with cache down = %v, want ErrInternal", err)
	}
}

func TestVerifyCorruptRecordFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if err := f.mr.Set(revocationKey(user.ID), "not json"); err != nil {
		t.Fatalf("miniredis set failed: %v", err)
	}

	if _, err := f.svc.VerifyToken(ctx, token); !errors.Is(err, ErrInternal) {
		t.Fatalf("VerifyToken with corrupt record = %v, want ErrInternal", err)
	}
}

func TestVerifyTokenClassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	if _, err := f.svc.VerifyToken(ctx, "not.a.token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("garbage token = %v, want ErrTokenMalformed", err)
	}

	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256,
		jwt.NewUserClaims(user, f.clock.Now(), TokenLifetime)).
		SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := f.svc.VerifyToken(ctx, forged); !errors.Is(err, ErrTokenAlgorithm) {
		t.Fatalf("forged alg token = %v, want ErrTokenAlgorithm", err)
	}
}

func TestRecordInvalidationRejectsUnknownReason(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RecordInvalidation(context.Background(), "some-subject", Reason("bogus"))
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("RecordInvalidation = %v, want ErrInternal", err)
	}
}

func TestPasswordHelpersRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := f.svc.HashPassword(ctx, "correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	match, err := f.svc.VerifyPassword(ctx, "correct horse battery", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !match {
		t.Error("hashed password did not verify")
	}

	match, err = f.svc.VerifyPassword(ctx, "wrong password!", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if match {
		t.Error("wrong password verified")
	}
}

func TestPasswordHelpersHonorContext(t *testing.T) {
	f := newFixture(t)

	// The crypto bound acquires with the request context; a dead
	// context must refuse the work instead of hashing anyway.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.HashPassword(ctx, "correct horse battery"); !errors.Is(err, ErrInternal) {
		t.Fatalf("HashPassword with canceled ctx = %v, want ErrInternal", err)
	}
	if _, err := f.svc.VerifyPassword(ctx, "correct horse battery", "$argon2id$..."); !errors.Is(err, ErrInternal) {
		t.Fatalf("VerifyPassword with canceled ctx = %v, want ErrInternal", err)
	}
}

func TestConcurrentVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ana@example.com", "correct horse battery")

	token, err := f.svc.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyToken(ctx, token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent VerifyToken failed: %v", err)
	}
}

func TestMetricsCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "ana@example.com", "correct horse battery")

	if _, err := f.svc.Authenticate(ctx, "ana@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	_, _ = f.svc.Authenticate(ctx, "ana@example.com", "wrong password!")

	snap := f.svc.Metrics()
	if snap.LoginSuccess != 1 || snap.LoginFailure != 1 {
		t.Errorf("login counters = %d/%d, want 1/1", snap.LoginSuccess, snap.LoginFailure)
	}
	if snap.TokenIssued != 1 {
		t.Errorf("tokens issued = %d, want 1", snap.TokenIssued)
	}
}

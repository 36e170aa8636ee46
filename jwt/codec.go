package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tobiasfell/quill/store"
)

var (
	// ErrExpired is returned when the token's embedded expiry is in
	// the past at decode time.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the token structure or signature
	// does not verify.
	ErrMalformed = errors.New("token malformed")
	// ErrAlgorithm is returned when the token declares a signing
	// algorithm other than EdDSA. Checked independently of signature
	// verification: accepting alternate algorithms is a known forgery
	// vector.
	ErrAlgorithm = errors.New("token algorithm mismatch")
)

// UserClaims is the payload embedded in an access token. Immutable once
// issued; it exists only inside a signed token and is never stored
// server-side.
type UserClaims struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     store.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewUserClaims stamps a claim set for the given user at the provided
// instant. Timestamps are second precision by the wire contract.
func NewUserClaims(u *store.User, now time.Time, lifetime time.Duration) UserClaims {
	now = now.Truncate(time.Second)

	return UserClaims{
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
}

// Config holds the process-wide signing key material. Keys are read
// only after construction; the codec never mutates them.
type Config struct {
	// PrivateKey is a raw ed25519 private key or its PEM encoding.
	// May be empty for verify-only codecs.
	PrivateKey []byte
	// PublicKey is a raw ed25519 public key or its PEM encoding.
	PublicKey []byte
}

// Codec signs and verifies EdDSA access tokens. It is a pure
// cryptographic function over the configured key material: no I/O, safe
// for concurrent use.
type Codec struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewCodec validates the key material and builds a codec.
func NewCodec(cfg Config) (*Codec, error) {
	c := &Codec{}

	if len(cfg.PrivateKey) > 0 {
		priv, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.priv = priv
	}

	if len(cfg.PublicKey) == 0 {
		return nil, errors.New("jwt: public key required")
	}
	pub, err := parsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	c.pub = pub

	return c, nil
}

// Issue encodes and signs the claim set. It fails only on signing-key
// faults, which callers treat as internal errors.
func (c *Codec) Issue(claims UserClaims) (string, error) {
	if c.priv == nil {
		return "", errors.New("jwt: codec has no signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(c.priv)
}

// Verify parses and verifies a compact token, classifying failures into
// ErrExpired, ErrAlgorithm and ErrMalformed.
func (c *Codec) Verify(tokenStr string) (*UserClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		// Layered under the parser-level method pin; the key is never
		// handed out for a foreign algorithm even if the pin is
		// dropped.
		if t.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
			return nil, ErrAlgorithm
		}
		return c.pub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlgorithm):
			return nil, ErrAlgorithm
		case token != nil && token.Method != nil && token.Method.Alg() != jwt.SigningMethodEdDSA.Alg():
			// The method pin rejects before the keyfunc runs and folds
			// the failure into the generic signature error; the parsed
			// header still tells us this was an algorithm mismatch.
			return nil, ErrAlgorithm
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

func parsePrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parsePublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}

// Package config loads process configuration from the environment.
// Everything is read once at startup; the resulting struct is treated
// as immutable afterwards.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of process knobs. Signing keys arrive base64
// encoded (raw ed25519 or PEM bytes underneath) and are decoded by
// Load.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PostgresDSN string `env:"POSTGRES_DSN,required"`

	JWTPrivateKeyB64 string `env:"JWT_PRIVATE_KEY,required"`
	JWTPublicKeyB64  string `env:"JWT_PUBLIC_KEY,required"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Decoded key material, populated by Load.
	JWTPrivateKey []byte `env:"-"`
	JWTPublicKey  []byte `env:"-"`
}

// Load parses the environment and decodes the key material.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var err error
	cfg.JWTPrivateKey, err = decodeKey(cfg.JWTPrivateKeyB64)
	if err != nil {
		return nil, fmt.Errorf("config: JWT_PRIVATE_KEY: %w", err)
	}
	cfg.JWTPublicKey, err = decodeKey(cfg.JWTPublicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
	}

	return &cfg, nil
}

func decodeKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, errors.New("empty key")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("not valid base64")
	}
	if len(raw) == 0 {
		return nil, errors.New("decodes to zero bytes")
	}
	return raw, nil
}

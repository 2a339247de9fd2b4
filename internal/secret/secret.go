// Package secret provisions the signing secret once at process start.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// MinLength is the shortest secret accepted in production.
const MinLength = 32

// ErrConfigurationFatal marks a misconfiguration that must stop the process.
var ErrConfigurationFatal = errors.New("fatal configuration error")

// Config is the raw input read from the environment.
type Config struct {
	Value      string
	Production bool
}

// Provider holds the resolved secret for the process lifetime.
type Provider struct {
	value     string
	generated bool
}

// Load resolves the secret. Production rejects absent or short secrets with an
// error wrapping ErrConfigurationFatal; other environments fall back to a
// generated placeholder and log a warning.
func Load(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case cfg.Value == "" && cfg.Production:
		return nil, fmt.Errorf("%w: signing secret is not set", ErrConfigurationFatal)
	case cfg.Value == "":
		value, err := placeholder(time.Now())
		if err != nil {
			return nil, err
		}
		p := &Provider{value: value, generated: true}
		logger.Warn("signing secret not set, using generated development placeholder; tokens will not survive a restart",
			"secret", p)
		return p, nil
	case len(cfg.Value) < MinLength && cfg.Production:
		return nil, fmt.Errorf("%w: signing secret must be at least %d characters", ErrConfigurationFatal, MinLength)
	case len(cfg.Value) < MinLength:
		p := &Provider{value: cfg.Value}
		logger.Warn("signing secret is shorter than the production minimum",
			"min_length", MinLength,
			"secret", p)
		return p, nil
	}
	return &Provider{value: cfg.Value}, nil
}

func placeholder(now time.Time) (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate placeholder secret: %w", err)
	}
	return "dev-" + strconv.FormatInt(now.UnixNano(), 36) + "-" + hex.EncodeToString(buf), nil
}

// Secret returns the signing material.
func (p *Provider) Secret() string {
	return p.value
}

// Bytes returns the secret as an HMAC key.
func (p *Provider) Bytes() []byte {
	return []byte(p.value)
}

// Generated reports whether the secret is a development placeholder.
func (p *Provider) Generated() bool {
	return p.generated
}

// Fingerprint identifies the secret in logs without revealing it.
func (p *Provider) Fingerprint() string {
	sum := sha256.Sum256([]byte(p.value))
	return hex.EncodeToString(sum[:6])
}

func (p *Provider) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("fingerprint", p.Fingerprint()),
		slog.Bool("generated", p.generated),
	)
}

func (p *Provider) String() string {
	return "secret(" + p.Fingerprint() + ")"
}

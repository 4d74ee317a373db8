// Package secrets resolves the agent's signing key from an account reference.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"solana-mm-agent/internal/solana"
)

// ErrSecretNotFound is returned when a reference resolves to nothing.
var ErrSecretNotFound = errors.New("secret not found")

// Provider looks up a secret value by reference.
type Provider interface {
	Secret(ctx context.Context, ref string) (string, error)
}

// ResolveKeypair resolves ref through p and parses the base58 secret key.
func ResolveKeypair(ctx context.Context, p Provider, ref string) (*solana.Keypair, error) {
	secret, err := p.Secret(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve account %q: %w", ref, err)
	}
	kp, err := solana.KeypairFromBase58(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("parse account %q: %w", ref, err)
	}
	return kp, nil
}

// EnvProvider reads secrets from environment variables named
// Prefix + the upper-cased reference, with '-', '.' and '/' mapped to '_'.
type EnvProvider struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an EnvProvider backed by os.LookupEnv.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

var envReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

// Key returns the environment variable name for ref.
func (p *EnvProvider) Key(ref string) string {
	return p.Prefix + strings.ToUpper(envReplacer.Replace(ref))
}

// Secret returns the variable's value, or ErrSecretNotFound when unset or empty.
func (p *EnvProvider) Secret(_ context.Context, ref string) (string, error) {
	key := p.Key(ref)
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// DefaultVaultMount is the KV v2 mount used when none is configured.
const DefaultVaultMount = "secret"

// DefaultVaultField is the key inside the secret that holds the base58 secret key.
const DefaultVaultField = "secret_key"

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Address string // e.g. https://vault.example.com:8200
	Token   string // falls back to VAULT_TOKEN
	Mount   string // KV v2 mount path
	Field   string // key inside the secret data
}

// VaultProvider reads secrets from a Vault KV v2 engine.
type VaultProvider struct {
	client *vault.Client
	mount  string
	field  string
}

// NewVaultProvider creates a token-authenticated Vault provider.
func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}

	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(token)

	p := &VaultProvider{client: client, mount: cfg.Mount, field: cfg.Field}
	if p.mount == "" {
		p.mount = DefaultVaultMount
	}
	if p.field == "" {
		p.field = DefaultVaultField
	}

	log.Info().
		Str("address", vcfg.Address).
		Str("mount_path", p.mount).
		Msg("Vault secrets provider initialized")

	return p, nil
}

// Secret reads mount/data/ref and returns the configured field.
func (p *VaultProvider) Secret(ctx context.Context, ref string) (string, error) {
	path := fmt.Sprintf("%s/data/%s", strings.Trim(p.mount, "/"), strings.Trim(ref, "/"))

	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	value, ok := data[p.field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: key %q at %s", ErrSecretNotFound, p.field, path)
	}
	return value, nil
}

package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte Solana address.
type PublicKey [32]byte

// String returns the base58 address.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point.
// Program-derived addresses are off curve and cannot sign.
func (p PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(address string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(address)
	if err != nil {
		return pk, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// Keypair holds an ed25519 signing key. It never leaves the process.
type Keypair struct {
	private ed25519.PrivateKey
	public  PublicKey
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kp := &Keypair{private: priv}
	copy(kp.public[:], priv.Public().(ed25519.PublicKey))
	return kp, nil
}

// GenerateSeed returns a fresh random 32-byte seed.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}

// KeypairFromBase58 parses a base58 secret key: either the 64-byte
// seed||pubkey form used by Solana wallets, or a bare 32-byte seed.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return NewKeypairFromSeed(raw)
	case ed25519.PrivateKeySize:
		kp, err := NewKeypairFromSeed(raw[:ed25519.SeedSize])
		if err != nil {
			return nil, err
		}
		var embedded PublicKey
		copy(embedded[:], raw[ed25519.SeedSize:])
		if embedded != kp.public {
			return nil, fmt.Errorf("secret key public half does not match seed")
		}
		return kp, nil
	default:
		return nil, fmt.Errorf("secret key must be 32 or 64 bytes, got %d", len(raw))
	}
}

// PublicKey returns the signer's public key.
func (k *Keypair) PublicKey() PublicKey {
	return k.public
}

// Address returns the base58 address.
func (k *Keypair) Address() string {
	return k.public.String()
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// SecretBase58 encodes the 64-byte secret key the way Solana wallets do.
func (k *Keypair) SecretBase58() string {
	return base58.Encode(k.private)
}

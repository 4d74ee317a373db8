package solana

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned when the owner holds no account for a mint.
var ErrAccountNotFound = errors.New("account not found")

// Commitment levels accepted by the cluster.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// LamportsPerSOL converts lamports to SOL.
const LamportsPerSOL = 1_000_000_000

// RPCClient defines the Solana RPC HTTP calls the agent relies on.
type RPCClient interface {
	// GetBalance returns the native balance of an address in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenBalance returns the owner's balance of a mint.
	// Returns ErrAccountNotFound if the owner has no token account for it.
	GetTokenBalance(ctx context.Context, owner, mint string) (*TokenAmount, error)

	// SendTransaction broadcasts a signed base64 transaction and returns its signature.
	SendTransaction(ctx context.Context, signedTx string, opts *SendOpts) (string, error)

	// GetSignatureStatuses returns one status per signature; nil entries are unknown.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}

// TokenAmount is an SPL token balance.
type TokenAmount struct {
	Amount   string // raw base units
	Decimals int32
	UIAmount float64 // Amount / 10^Decimals
}

// SendOpts are optional sendTransaction parameters.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint // broadcast retries performed by the RPC node
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	Err                interface{}
	ConfirmationStatus string
}

// Reached reports whether the status satisfies the commitment level.
func (s *SignatureStatus) Reached(commitment string) bool {
	rank := map[string]int{CommitmentProcessed: 0, CommitmentConfirmed: 1, CommitmentFinalized: 2}
	want, ok := rank[commitment]
	if !ok {
		want = rank[CommitmentConfirmed]
	}
	got, ok := rank[s.ConfirmationStatus]
	if !ok {
		return false
	}
	return got >= want
}

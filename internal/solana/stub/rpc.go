package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-mm-agent/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Sent transactions confirm immediately unless FailSigs marks them failed.
type RPCClient struct {
	mu sync.Mutex

	Balances      map[string]uint64
	TokenBalances map[string]*solana.TokenAmount // keyed by owner+"/"+mint
	Sent          []string
	FailSigs      map[string]interface{}

	// SendErr, BalanceErr are returned from the matching call when set.
	SendErr    error
	BalanceErr error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]*solana.TokenAmount),
		FailSigs:      make(map[string]interface{}),
	}
}

// GetBalance returns the stored lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[address], nil
}

// GetTokenBalance returns the stored token balance.
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	bal, ok := c.TokenBalances[owner+"/"+mint]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	cp := *bal
	return &cp, nil
}

// SendTransaction records the transaction and returns a deterministic signature.
func (c *RPCClient) SendTransaction(_ context.Context, signedTx string, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, signedTx)
	return fmt.Sprintf("stubsig%d", len(c.Sent)), nil
}

// GetSignatureStatuses reports every known signature as finalized.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = &solana.SignatureStatus{
			ConfirmationStatus: solana.CommitmentFinalized,
			Err:                c.FailSigs[sig],
		}
	}
	return out, nil
}

// SetBalance sets the lamport balance of an address.
func (c *RPCClient) SetBalance(address string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[address] = lamports
}

// SetTokenBalance sets the owner's balance of a mint.
func (c *RPCClient) SetTokenBalance(owner, mint string, amount *solana.TokenAmount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[owner+"/"+mint] = amount
}

// SentCount returns the number of broadcast transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

var _ solana.RPCClient = (*RPCClient)(nil)

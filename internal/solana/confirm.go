package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is the getSignatureStatuses polling period.
const DefaultPollInterval = 2 * time.Second

// TransactionError reports a transaction that landed but failed on chain.
type TransactionError struct {
	Signature string
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// Confirmer waits for a signature to reach a commitment level. It listens on
// the WebSocket subscription when one is available and polls signature
// statuses in parallel, so a missed notification only costs one poll period.
type Confirmer struct {
	rpc          RPCClient
	ws           WSClient
	pollInterval time.Duration
}

// NewConfirmer creates a Confirmer. ws may be nil.
func NewConfirmer(rpc RPCClient, ws WSClient, pollInterval time.Duration) *Confirmer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Confirmer{rpc: rpc, ws: ws, pollInterval: pollInterval}
}

// Confirm blocks until signature reaches commitment. It returns
// *TransactionError if the transaction failed on chain and ctx.Err() when the
// context ends first.
func (c *Confirmer) Confirm(ctx context.Context, signature, commitment string) error {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	var notifications <-chan SignatureNotification
	if c.ws != nil {
		ch, err := c.ws.SubscribeSignature(ctx, signature, commitment)
		if err != nil {
			log.Warn().Err(err).Str("signature", signature).Msg("Signature subscription failed, polling only")
		} else {
			notifications = ch
			defer c.ws.UnsubscribeSignature(signature)
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if done, err := c.poll(ctx, signature, commitment); done {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if n.Err != nil {
				return &TransactionError{Signature: signature, Err: n.Err}
			}
			return nil
		case <-ticker.C:
		}
	}
}

// poll checks the signature status once. Transport failures are not terminal.
func (c *Confirmer) poll(ctx context.Context, signature, commitment string) (bool, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		log.Debug().Err(err).Str("signature", signature).Msg("Signature status poll failed")
		return false, nil
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false, nil
	}

	status := statuses[0]
	if status.Err != nil {
		return true, &TransactionError{Signature: signature, Err: status.Err}
	}
	return status.Reached(commitment), nil
}

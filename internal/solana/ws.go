package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature subscribes to the confirmation of one transaction.
	// The channel receives at most one notification and is then closed.
	SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	// UnsubscribeSignature drops any live subscription for signature and
	// closes its channel. It is a no-op once the notification was delivered.
	UnsubscribeSignature(signature string)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification reports that a transaction reached the subscribed commitment.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // non-nil if the transaction failed on chain
}

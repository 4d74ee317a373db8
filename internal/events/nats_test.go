package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-mm-agent/internal/domain"
)

// startTestNATSServer starts an embedded NATS server for testing
func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSPublisher_PublishTrade(t *testing.T) {
	ns := startTestNATSServer(t)

	pub, err := NewNATSPublisher(NATSConfig{URL: ns.ClientURL(), SubjectPrefix: "test."})
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("test.*.trade", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	record := &domain.TradeRecord{
		IntentID:   "intent-1",
		Agent:      "AgentAddr",
		Strategy:   "dca",
		Direction:  domain.DirectionBuy,
		Asset:      "MintA",
		Size:       0.1,
		Price:      0.05,
		Signature:  "sig",
		ExecutedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishTrade(context.Background(), TradeEventFrom(record, "dca buy 1/3")))

	select {
	case msg := <-received:
		assert.Equal(t, "test.AgentAddr.trade", msg.Subject)
		var got TradeEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "intent-1", got.IntentID)
		assert.Equal(t, domain.DirectionBuy, got.Direction)
		assert.Equal(t, "dca buy 1/3", got.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("trade event not received")
	}
}

func TestNATSPublisher_Subject(t *testing.T) {
	ns := startTestNATSServer(t)

	pub, err := NewNATSPublisher(NATSConfig{URL: ns.ClientURL()})
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "mmagent.A1.lifecycle", pub.Subject("A1", KindLifecycle))
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	ns := startTestNATSServer(t)

	pub, err := NewNATSPublisher(NATSConfig{URL: ns.ClientURL()})
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.PublishLifecycle(ctx, LifecycleEvent{Agent: "A1"}), context.Canceled)
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher(NATSConfig{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishTrade(context.Background(), TradeEvent{}))
	assert.NoError(t, p.PublishLifecycle(context.Background(), LifecycleEvent{}))
	p.Close()
}

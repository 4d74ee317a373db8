package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"solana-mm-agent/internal/observability"
)

// DefaultSubjectPrefix namespaces every subject.
const DefaultSubjectPrefix = "mmagent."

// NATSConfig configures a NATSPublisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // default "mmagent."
	Name          string // client connection name
}

// NATSPublisher publishes JSON events to {prefix}{agent}.{kind}.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS with unlimited reconnects.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	name := cfg.Name
	if name == "" {
		name = "mm-agent"
	}

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	log.Info().
		Str("nats_url", cfg.URL).
		Str("prefix", prefix).
		Msg("Event publisher initialized")

	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject for an agent and event kind.
func (p *NATSPublisher) Subject(agent, kind string) string {
	return fmt.Sprintf("%s%s.%s", p.prefix, agent, kind)
}

// PublishTrade publishes a trade event.
func (p *NATSPublisher) PublishTrade(ctx context.Context, e TradeEvent) error {
	return p.publish(ctx, p.Subject(e.Agent, KindTrade), e)
}

// PublishLifecycle publishes a lifecycle event.
func (p *NATSPublisher) PublishLifecycle(ctx context.Context, e LifecycleEvent) error {
	return p.publish(ctx, p.Subject(e.Agent, KindLifecycle), e)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, v any) (err error) {
	defer func() { observability.RecordEventPublished(subject, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.nc.IsConnected() {
		return fmt.Errorf("event publisher not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

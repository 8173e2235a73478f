// Package bus provides the event transports that carry ledger events and
// analysis jobs.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// New creates an event bus from configuration.
// "channel" returns an in-process ChannelBus, "nats" a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds an envelope for payload and injects the trace context
// of ctx into its metadata.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	md := make(map[string]string)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(md))

	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  md,
		Timestamp: time.Now().UnixNano(),
	}
}

// handlerContext returns ctx carrying the trace context stored in msg.
func handlerContext(ctx context.Context, msg *domain.Message) context.Context {
	if len(msg.Metadata) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))
}

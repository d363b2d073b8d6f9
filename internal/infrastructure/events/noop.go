package events

import (
	"context"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

type noopPublisher struct{}

// NewNoopPublisher is used when no event broker is configured.
func NewNoopPublisher() ports.EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) PublishPaymentAccepted(context.Context, domain.PaymentAcceptedEvent) error {
	return nil
}

func (noopPublisher) Close() {}

package ports

import (
	"context"

	"github.com/soldihq/soldi/internal/core/domain"
)

// EventPublisher delivers domain events to external subscribers with
// fire-and-forget semantics.
type EventPublisher interface {
	PublishPaymentAccepted(ctx context.Context, event domain.PaymentAcceptedEvent) error
	Close()
}

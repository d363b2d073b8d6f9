package redisevents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

const paymentAcceptedChannel = "soldi:payments:accepted"

// publisher broadcasts domain events on redis pub/sub channels. Subscribers
// that are offline miss the event; the payment record itself is the source of
// truth.
type publisher struct {
	client *redis.Client
}

func NewPublisher(redisURL string) (ports.EventPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &publisher{client}, nil
}

func (p *publisher) PublishPaymentAccepted(
	ctx context.Context, event domain.PaymentAcceptedEvent,
) error {
	buf, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if err := p.client.Publish(ctx, paymentAcceptedChannel, buf).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	log.Debugf("published accepted event for payment %s", event.PaymentID)
	return nil
}

func (p *publisher) Close() {
	// nolint:all
	p.client.Close()
}

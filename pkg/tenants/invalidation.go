package tenants

import (
	"context"

	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/go-redis/redis/v8"
)

// InvalidationChannel is the pub/sub channel carrying user IDs whose
// cached resolutions must be dropped.
const InvalidationChannel = "authcore:invalidate"

// InvalidationBus fans membership and role changes out to every
// resolver instance over Redis pub/sub. The payload is the affected
// user ID.
type InvalidationBus struct {
	client  *redis.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewInvalidationBus creates a bus on client.
func NewInvalidationBus(client *redis.Client, logger *observability.Logger, metrics *observability.Metrics) *InvalidationBus {
	return &InvalidationBus{client: client, logger: logger, metrics: metrics}
}

// Publish announces that userID's access may have changed. Publish
// failures are logged, not returned: the local eviction already
// happened and remote caches expire on their own TTL anyway.
func (b *InvalidationBus) Publish(ctx context.Context, userID string) {
	if b == nil || b.client == nil {
		return
	}
	if err := b.client.Publish(ctx, InvalidationChannel, userID).Err(); err != nil {
		b.logger.WithError(err).WithField("user_id", userID).Warn("failed to publish invalidation")
		return
	}
	b.metrics.RecordCacheInvalidation("resolver", "local")
}

// Listen subscribes to the invalidation channel and evicts the
// resolver's cached entries for each announced user. Blocks until ctx
// is cancelled.
func (b *InvalidationBus) Listen(ctx context.Context, resolver *Resolver) error {
	pubsub := b.client.Subscribe(ctx, InvalidationChannel)
	defer pubsub.Close()

	// Fail fast if the subscription could not be established.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			resolver.InvalidateUser(ctx, msg.Payload)
			b.metrics.RecordCacheInvalidation("resolver", "remote")
			b.logger.WithField("user_id", msg.Payload).Debug("evicted cached resolutions")
		}
	}
}

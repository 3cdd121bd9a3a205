package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MembershipEvent signals that the membership of a tenant's team changed
// and the tenant's pending invitations should be reconciled now instead
// of waiting for the next sweep.
type MembershipEvent struct {
	TenantID string
}

// EventFeed is the explicit subscription interface the reconciler owns:
// it subscribes on activation and tears the subscription down
// deterministically when the run context is cancelled.
type EventFeed interface {
	Subscribe(ctx context.Context) (<-chan MembershipEvent, error)
	Publish(ctx context.Context, event MembershipEvent) error
	Close() error
}

const membershipChannel = "acadium.membership"

// RedisFeed carries membership events over a Redis pub/sub channel so
// every API replica converges without polling each other's writes.
type RedisFeed struct {
	rdb    *redis.Client
	logger zerolog.Logger
	pubsub *redis.PubSub
}

func NewRedisFeed(url string, logger zerolog.Logger) (*RedisFeed, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisFeed{
		rdb:    rdb,
		logger: logger.With().Str("component", "membership_feed").Logger(),
	}, nil
}

func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan MembershipEvent, error) {
	f.pubsub = f.rdb.Subscribe(ctx, membershipChannel)
	if _, err := f.pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	events := make(chan MembershipEvent)
	go func() {
		defer close(events)
		for msg := range f.pubsub.Channel() {
			select {
			case events <- MembershipEvent{TenantID: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (f *RedisFeed) Publish(ctx context.Context, event MembershipEvent) error {
	return f.rdb.Publish(ctx, membershipChannel, event.TenantID).Err()
}

func (f *RedisFeed) Close() error {
	if f.pubsub != nil {
		if err := f.pubsub.Close(); err != nil {
			f.logger.Warn().Err(err).Msg("failed to close pubsub")
		}
	}
	return f.rdb.Close()
}

// InProcessFeed is a single-process EventFeed for development and tests.
type InProcessFeed struct {
	mu     sync.Mutex
	events chan MembershipEvent
	closed bool
}

func NewInProcessFeed() *InProcessFeed {
	return &InProcessFeed{events: make(chan MembershipEvent, 16)}
}

func (f *InProcessFeed) Subscribe(ctx context.Context) (<-chan MembershipEvent, error) {
	return f.events, nil
}

func (f *InProcessFeed) Publish(ctx context.Context, event MembershipEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	select {
	case f.events <- event:
	default:
		// A full buffer is fine: the periodic sweep catches up.
	}
	return nil
}

func (f *InProcessFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

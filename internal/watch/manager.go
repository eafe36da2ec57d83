package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event is a change notification for a ledger entity. Consumers use it to
// refresh derived balances without polling.
type Event struct {
	Entity     string    `json:"entity"`
	BusinessID uuid.UUID `json:"businessId"`
	EntityID   string    `json:"entityId"`
	Action     string    `json:"action"`
	At         time.Time `json:"at"`
}

// Manager fans ledger change events out over redis pub/sub. One subscription
// exists per (entity, business) pair; subscribing again replaces the previous
// handler and tears down its listener.
type Manager struct {
	logger *slog.Logger
	client *redis.Client

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

// NewManager constructs a Manager.
func NewManager(logger *slog.Logger, client *redis.Client) *Manager {
	return &Manager{
		logger: logger,
		client: client,
		subs:   make(map[string]context.CancelFunc),
	}
}

func channelFor(entity string, businessID uuid.UUID) string {
	return fmt.Sprintf("watch:%s:%s", entity, businessID)
}

// Publish sends an event to the entity's business channel.
func (m *Manager) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("watch: marshal event: %w", err)
	}
	if err := m.client.Publish(ctx, channelFor(event.Entity, event.BusinessID), payload).Err(); err != nil {
		return fmt.Errorf("watch: publish: %w", err)
	}
	return nil
}

// Subscribe starts delivering the pair's events to handler. Replaces any
// previous subscription for the same pair.
func (m *Manager) Subscribe(entity string, businessID uuid.UUID, handler func(Event)) {
	key := channelFor(entity, businessID)
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if prev, ok := m.subs[key]; ok {
		prev()
	}
	m.subs[key] = cancel
	m.mu.Unlock()

	sub := m.client.Subscribe(ctx, key)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					m.logger.Warn("watch: drop malformed event",
						slog.String("channel", key),
						slog.Any("error", err))
					continue
				}
				handler(event)
			}
		}
	}()
}

// Unsubscribe stops the pair's subscription if one exists.
func (m *Manager) Unsubscribe(entity string, businessID uuid.UUID) {
	key := channelFor(entity, businessID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.subs[key]; ok {
		cancel()
		delete(m.subs, key)
	}
}

// Close tears down every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.subs {
		cancel()
		delete(m.subs, key)
	}
}

package dispatcher

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/metrics"
)

const defaultBufferSize = 64

// Subscription is a live registration of one delivery channel for a user.
// Deliveries arrive on C until the subscription is removed, at which point C
// is closed. Delivery is forward-only: no backlog is replayed on subscribe.
type Subscription struct {
	userID string
	send   chan models.Notification
	once   sync.Once
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan models.Notification {
	return s.send
}

// UserID reports the user the subscription belongs to.
func (s *Subscription) UserID() string {
	return s.userID
}

// Dispatcher fan-outs persisted notifications to the live subscriptions of
// their owning user. Delivery is best effort: durability has already happened
// by the time Publish runs, so a failed push is dropped, never surfaced.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	bufferSize  int
	log         *zap.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithBufferSize overrides the per-subscription delivery buffer.
func WithBufferSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.bufferSize = size
		}
	}
}

// New constructs a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subscribers: make(map[string]map[*Subscription]struct{}),
		bufferSize:  defaultBufferSize,
		log:         logger.WithModule("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers a delivery channel for the user and returns its handle.
func (d *Dispatcher) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		userID: strings.TrimSpace(userID),
		send:   make(chan models.Notification, d.bufferSize),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subscribers[sub.userID] == nil {
		d.subscribers[sub.userID] = make(map[*Subscription]struct{})
	}
	d.subscribers[sub.userID][sub] = struct{}{}
	metrics.LiveSubscriptions.Inc()

	return sub
}

// Unsubscribe removes a subscription and closes its channel. Removing an
// already-removed subscription is a no-op.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	d.mu.Lock()
	removed := d.removeLocked(sub)
	d.mu.Unlock()

	if removed {
		metrics.LiveSubscriptions.Dec()
	}
	sub.once.Do(func() {
		close(sub.send)
	})
}

// Publish pushes a copy of the notification to every live subscription for its
// owning user. A subscriber whose buffer is full is dropped (implicit
// unsubscribe) without blocking delivery to the others; Publish itself never
// fails.
func (d *Dispatcher) Publish(notification models.Notification) {
	userID := strings.TrimSpace(notification.UserID)
	if userID == "" {
		return
	}

	var stalled []*Subscription

	d.mu.RLock()
	for sub := range d.subscribers[userID] {
		select {
		case sub.send <- notification:
			metrics.Deliveries.WithLabelValues("delivered").Inc()
		default:
			stalled = append(stalled, sub)
		}
	}
	d.mu.RUnlock()

	for _, sub := range stalled {
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		d.log.Warn("dropping backpressure subscriber",
			zap.String("user_id", userID),
			zap.String("notification_id", notification.ID),
		)
		d.Unsubscribe(sub)
	}
}

// SubscriberCount reports live subscriptions for a user.
func (d *Dispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[strings.TrimSpace(userID)])
}

func (d *Dispatcher) removeLocked(sub *Subscription) bool {
	subs := d.subscribers[sub.userID]
	if subs == nil {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(d.subscribers, sub.userID)
	}
	return true
}

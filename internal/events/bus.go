// Package events provides the in-process pub/sub bus that distributes
// analytics and sync notifications between components.
package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"einvoice-analytics/internal/logging"
)

// Topic names the event streams components publish to
type Topic string

const (
	TopicMetricRecorded Topic = "metric.recorded"
	TopicKPICalculated  Topic = "kpi.calculated"
	TopicTrendAlert     Topic = "trend.alert"
	TopicInsightCreated Topic = "insight.created"
	TopicSyncInvalidate Topic = "sync.invalidate"
	TopicSyncConflict   Topic = "sync.conflict"
)

// Event is one bus message
type Event struct {
	ID        string         `json:"id"`
	Topic     Topic          `json:"topic"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscription is a live registration on one or more topics
type Subscription struct {
	ID           string
	SubscriberID string
	Topics       map[Topic]bool
	Channel      chan Event
}

// Matches reports whether the subscription wants the topic
func (s *Subscription) Matches(topic Topic) bool {
	if len(s.Topics) == 0 {
		return true
	}
	return s.Topics[topic]
}

// BusMetrics tracks bus throughput
type BusMetrics struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Bus is a bounded in-process pub/sub event bus. Delivery is best-effort: a
// full subscriber channel drops the event and bumps the dropped counter
// rather than blocking the publisher.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	metrics       BusMetrics
	bufferSize    int
	maxSubs       int
	running       bool
	logger        logging.Logger
}

// NewBus creates an event bus with the given per-subscription buffer
func NewBus(bufferSize, maxSubscribers int, logger logging.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSubscribers <= 0 {
		maxSubscribers = 100
	}
	if logger == nil {
		logger = logging.NewNoOp()
	}
	return &Bus{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
		maxSubs:       maxSubscribers,
		logger:        logger.WithComponent("event_bus"),
	}
}

// Start marks the bus as accepting subscriptions and publishes
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("event bus already running")
	}
	b.running = true
	b.logger.Info("event bus started", "buffer_size", b.bufferSize, "max_subscribers", b.maxSubs)
	return nil
}

// Stop closes every subscription channel
func (b *Bus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return errors.New("event bus not running")
	}
	b.running = false
	for _, sub := range b.subscriptions {
		close(sub.Channel)
	}
	b.subscriptions = make(map[string]*Subscription)
	b.logger.Info("event bus stopped")
	return nil
}

// Subscribe registers for the given topics; no topics means all topics
func (b *Bus) Subscribe(subscriberID string, topics ...Topic) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil, errors.New("event bus not running")
	}
	if len(b.subscriptions) >= b.maxSubs {
		return nil, fmt.Errorf("maximum subscribers reached: %d", b.maxSubs)
	}

	topicSet := make(map[Topic]bool, len(topics))
	for _, topic := range topics {
		topicSet[topic] = true
	}
	sub := &Subscription{
		ID:           uuid.New().String(),
		SubscriberID: subscriberID,
		Topics:       topicSet,
		Channel:      make(chan Event, b.bufferSize),
	}
	b.subscriptions[sub.ID] = sub
	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, exists := b.subscriptions[subscriptionID]
	if !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	close(sub.Channel)
	delete(b.subscriptions, subscriptionID)
	return nil
}

// Publish fans an event out to every matching subscription
func (b *Bus) Publish(topic Topic, payload map[string]any) {
	event := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.metrics.Published++
	for _, sub := range b.subscriptions {
		if !sub.Matches(topic) {
			continue
		}
		select {
		case sub.Channel <- event:
			b.metrics.Delivered++
		default:
			b.metrics.Dropped++
		}
	}
}

// Metrics returns a copy of the throughput counters
func (b *Bus) Metrics() BusMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

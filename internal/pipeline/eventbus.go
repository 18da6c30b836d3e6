package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventHandler is a function that handles engine events
type EventHandler func(ctx context.Context, event *EngineEvent) error

// Subscription represents an event subscription
type Subscription struct {
	ID         string
	EventTypes []EventType
	Handler    EventHandler
	BufferSize int
	channel    chan *EngineEvent
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	active     bool
	done       chan struct{}
}

// EventBus manages pub/sub for engine events
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventBuffer   chan *EngineEvent
	workers       int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	closeOnce     sync.Once
	stats         EventBusStats
	statsMu       sync.RWMutex // Protects stats fields
	logger        zerolog.Logger

	// DeliveryTimeout bounds how long a worker waits on a full subscriber.
	DeliveryTimeout time.Duration
}

// EventBusStats tracks event bus statistics
type EventBusStats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsDelivered   int64 `json:"events_delivered"`
	EventsFailed      int64 `json:"events_failed"`
	EventsDropped     int64 `json:"events_dropped"`
	ActiveSubscribers int64 `json:"active_subscribers"`
	EventsInBuffer    int64 `json:"events_in_buffer"`
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize, workers int, logger zerolog.Logger) *EventBus {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		subscriptions:   make(map[string]*Subscription),
		eventBuffer:     make(chan *EngineEvent, bufferSize),
		workers:         workers,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger.With().Str("component", "event_bus").Logger(),
		DeliveryTimeout: 5 * time.Second,
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}

	eb.logger.Info().
		Int("buffer_size", bufferSize).
		Int("workers", workers).
		Msg("Event bus started")

	return eb
}

// Publish queues an event for all matching subscribers. It never blocks; a
// full buffer drops the event.
func (eb *EventBus) Publish(event *EngineEvent) error {
	if eb.ctx.Err() != nil {
		return fmt.Errorf("event bus is shutting down")
	}
	select {
	case eb.eventBuffer <- event:
		eb.statsMu.Lock()
		eb.stats.EventsPublished++
		eb.statsMu.Unlock()
		return nil
	default:
		eb.statsMu.Lock()
		eb.stats.EventsDropped++
		eb.statsMu.Unlock()
		eb.logger.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Event dropped due to full buffer")
		return fmt.Errorf("event buffer is full")
	}
}

// Subscribe creates a new subscription for specific event types
func (eb *EventBus) Subscribe(eventTypes []EventType, handler EventHandler, bufferSize int) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler must not be nil")
	}
	if len(eventTypes) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}
	if eb.ctx.Err() != nil {
		return nil, fmt.Errorf("event bus is shutting down")
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}

	ctx, cancel := context.WithCancel(eb.ctx)
	sub := &Subscription{
		ID:         generateSubscriptionID(),
		EventTypes: eventTypes,
		Handler:    handler,
		BufferSize: bufferSize,
		channel:    make(chan *EngineEvent, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
		active:     true,
		done:       make(chan struct{}),
	}

	eb.mu.Lock()
	eb.subscriptions[sub.ID] = sub
	eb.mu.Unlock()

	eb.statsMu.Lock()
	eb.stats.ActiveSubscribers++
	eb.statsMu.Unlock()

	go eb.run(sub)

	eb.logger.Info().
		Str("subscription_id", sub.ID).
		Interface("event_types", eventTypes).
		Int("buffer_size", bufferSize).
		Msg("New subscription created")

	return sub, nil
}

// Unsubscribe removes a subscription and waits for its handler to return
func (eb *EventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	sub, exists := eb.subscriptions[subscriptionID]
	if !exists {
		eb.mu.Unlock()
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	eb.mu.Unlock()

	eb.stop(sub)

	eb.statsMu.Lock()
	eb.stats.ActiveSubscribers--
	eb.statsMu.Unlock()

	eb.logger.Info().Str("subscription_id", subscriptionID).Msg("Subscription removed")
	return nil
}

func (eb *EventBus) stop(sub *Subscription) {
	sub.mu.Lock()
	wasActive := sub.active
	sub.active = false
	sub.mu.Unlock()
	if wasActive {
		sub.cancel()
	}
	<-sub.done
}

// Close shuts down the event bus. Events still buffered are discarded.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.cancel()
		eb.wg.Wait()

		eb.mu.Lock()
		subs := make([]*Subscription, 0, len(eb.subscriptions))
		for id, sub := range eb.subscriptions {
			subs = append(subs, sub)
			delete(eb.subscriptions, id)
		}
		eb.mu.Unlock()

		for _, sub := range subs {
			eb.stop(sub)
		}

		eb.statsMu.Lock()
		eb.stats.ActiveSubscribers = 0
		eb.statsMu.Unlock()

		eb.logger.Info().Msg("Event bus shut down")
	})
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	eb.statsMu.RLock()
	defer eb.statsMu.RUnlock()

	stats := eb.stats
	stats.EventsInBuffer = int64(len(eb.eventBuffer))
	return stats
}

// worker fans events out from the bus buffer to subscriptions
func (eb *EventBus) worker(workerID int) {
	defer eb.wg.Done()

	eb.logger.Debug().Int("worker_id", workerID).Msg("Event bus worker started")

	for {
		select {
		case event := <-eb.eventBuffer:
			eb.deliverEvent(event)
		case <-eb.ctx.Done():
			eb.logger.Debug().Int("worker_id", workerID).Msg("Event bus worker stopping")
			return
		}
	}
}

// deliverEvent delivers an event to matching subscribers
func (eb *EventBus) deliverEvent(event *EngineEvent) {
	eb.mu.RLock()
	matching := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		if eventMatchesSubscription(event, sub) {
			matching = append(matching, sub)
		}
	}
	eb.mu.RUnlock()

	for _, sub := range matching {
		eb.deliverToSubscription(event, sub)
	}
}

// deliverToSubscription queues an event on a subscription, waiting at most
// DeliveryTimeout for room
func (eb *EventBus) deliverToSubscription(event *EngineEvent, sub *Subscription) {
	timer := time.NewTimer(eb.DeliveryTimeout)
	defer timer.Stop()

	select {
	case sub.channel <- event:
	case <-sub.ctx.Done():
	case <-timer.C:
		eb.statsMu.Lock()
		eb.stats.EventsFailed++
		eb.statsMu.Unlock()
		eb.logger.Warn().
			Str("subscription_id", sub.ID).
			Str("event_id", event.ID).
			Msg("Event delivery timeout")
	}
}

// run calls the subscription handler for each queued event
func (eb *EventBus) run(sub *Subscription) {
	defer close(sub.done)
	for {
		select {
		case event := <-sub.channel:
			if err := sub.Handler(sub.ctx, event); err != nil {
				eb.statsMu.Lock()
				eb.stats.EventsFailed++
				eb.statsMu.Unlock()
				eb.logger.Error().
					Err(err).
					Str("subscription_id", sub.ID).
					Str("event_id", event.ID).
					Msg("Event handler failed")
				continue
			}
			eb.statsMu.Lock()
			eb.stats.EventsDelivered++
			eb.statsMu.Unlock()
		case <-sub.ctx.Done():
			return
		}
	}
}

// eventMatchesSubscription checks if an event matches a subscription
func eventMatchesSubscription(event *EngineEvent, sub *Subscription) bool {
	for _, eventType := range sub.EventTypes {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// generateSubscriptionID generates a unique subscription ID
func generateSubscriptionID() string {
	return "sub_" + uuid.NewString()
}

package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/stream"
)

// FeedItem is one entry in the live subscription stream: an accepted reading
// or a raised alert, in arrival order.
type FeedItem struct {
	Reading *models.Reading    `json:"reading,omitempty"`
	Alert   *models.AlertEvent `json:"alert,omitempty"`
}

// Subscription is one consumer's bounded view of the feed. A slow consumer
// loses its oldest items; it never slows the pipeline down.
type Subscription struct {
	id     uint64
	queue  *stream.Ring[FeedItem]
	notify chan struct{}
	closed chan struct{}
	once   sync.Once
}

// Next blocks until an item is available, the context is cancelled, or the
// subscription is closed. The bool is false when no more items will come.
func (s *Subscription) Next(ctx context.Context) (FeedItem, bool) {
	for {
		if item, ok := s.queue.Pop(); ok {
			return item, true
		}
		select {
		case <-ctx.Done():
			return FeedItem{}, false
		case <-s.closed:
			// Drain what is left before reporting closure.
			if item, ok := s.queue.Pop(); ok {
				return item, true
			}
			return FeedItem{}, false
		case <-s.notify:
		}
	}
}

// Dropped reports how many items this subscriber lost to backpressure.
func (s *Subscription) Dropped() uint64 {
	return s.queue.Drops()
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.closed) })
}

// Feed fans accepted readings and alert events out to subscribers. It
// implements the sinks the pipeline and the alert manager publish into.
type Feed struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*Subscription)}
}

// PublishReading delivers an accepted reading to every subscriber.
func (f *Feed) PublishReading(reading models.Reading) {
	f.publish(FeedItem{Reading: &reading})
}

// PublishAlert delivers a raised alert to every subscriber.
func (f *Feed) PublishAlert(event models.AlertEvent) {
	f.publish(FeedItem{Alert: &event})
}

// Subscribe registers a consumer with its own bounded queue.
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{
		id:     f.nextID.Add(1),
		queue:  stream.NewRing[FeedItem](buffer),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()
	return sub
}

// Unsubscribe removes a consumer and wakes any blocked Next call.
func (f *Feed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	f.mu.Lock()
	delete(f.subs, sub.id)
	f.mu.Unlock()
	sub.close()
}

// Close shuts every subscription down.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		sub.close()
		delete(f.subs, id)
	}
}

func (f *Feed) publish(item FeedItem) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.queue.Push(item) {
			metrics.SubscriberDropped()
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

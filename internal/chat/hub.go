// ABOUTME: In-memory fan-out of Updates to subscribed views, keyed by topic.
// ABOUTME: Subscriptions are cancelled via context; the connection stays up.

package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Topics a view can subscribe to.
const (
	TopicConversations = "conversations"
	TopicMessages      = "messages"
	TopicDiscovery     = "discovery"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Hub provides in-memory pub/sub for Updates. A view subscribes to the
// topics it renders and stops observing by cancelling its context; the
// underlying connection and background reconciliation are unaffected.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Update // topic -> subID -> ch
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan Update),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a subscriber for updates on the given topic. Returns
// the receiving channel and a subscription id. The subscription is cleaned
// up automatically when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[topic]; !ok {
		h.subscribers[topic] = make(map[string]chan Update)
	}
	h.subscribers[topic][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Publish sends an update to all subscribers of the topic. Non-blocking:
// updates are dropped for subscribers whose channels are full. The sends
// happen under the lock so an unsubscribe cannot close a channel mid-publish.
func (h *Hub) Publish(topic string, u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[topic] {
		select {
		case ch <- u:
		default:
			h.logger.Debug("dropped update for slow subscriber", "topic", topic)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(topic, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, topic)
	}

	h.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, subs := range h.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subscribers, topic)
	}
}

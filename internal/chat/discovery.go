// ABOUTME: Poller resolves conversations the server creates implicitly on a
// ABOUTME: first message, since no synchronous create-and-return-id call exists.

package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrDiscoveryTimeout means the conversation did not appear in the list
// within the retry bound. The backend may have failed to create it; callers
// may retry explicitly.
var ErrDiscoveryTimeout = errors.New("conversation discovery timed out")

// Discovery cadence, matching the original client behavior, plus an explicit
// attempt bound the original lacked.
const (
	DefaultInitialDelay = time.Second
	DefaultRetryDelay   = 1500 * time.Millisecond
	DefaultMaxAttempts  = 8
)

// ConversationSource is the Poller's narrow view of the synchronizer: reload
// the list, then look the new thread up in it.
type ConversationSource interface {
	Refresh(ctx context.Context) error
	Find(listingID, counterpartID string) (*Conversation, bool)
	ResolveConversation(conv *Conversation)
}

// Poller discovers the server-assigned id of a conversation created
// implicitly by a first message to a (listing, counterpart) pair.
type Poller struct {
	src    ConversationSource
	hub    *Hub
	logger *slog.Logger

	initialDelay time.Duration
	retryDelay   time.Duration
	maxAttempts  int
}

// NewPoller creates a poller over the synchronizer. Zero durations and a
// zero attempt bound fall back to the defaults.
func NewPoller(src ConversationSource, hub *Hub, initialDelay, retryDelay time.Duration, maxAttempts int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Poller{
		src:          src,
		hub:          hub,
		logger:       logger.With("component", "discovery"),
		initialDelay: initialDelay,
		retryDelay:   retryDelay,
		maxAttempts:  maxAttempts,
	}
}

// Start launches discovery in the background. It satisfies the
// synchronizer's Discoverer dependency.
func (p *Poller) Start(ctx context.Context, listingID, counterpartID string) {
	go func() {
		if _, err := p.Discover(ctx, listingID, counterpartID); err != nil {
			p.logger.Warn("discovery gave up",
				"listing_id", listingID,
				"counterpart_id", counterpartID,
				"error", err)
		}
	}()
}

// Discover waits the initial delay, then reloads the conversation list and
// searches for the (listing, counterpart) thread, retrying with the longer
// delay up to the attempt bound. On success the synchronizer is notified and
// the id returned; exhaustion publishes a terminal DiscoveryFailed update
// and returns ErrDiscoveryTimeout.
func (p *Poller) Discover(ctx context.Context, listingID, counterpartID string) (int64, error) {
	if err := sleep(ctx, p.initialDelay); err != nil {
		return 0, err
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.src.Refresh(ctx); err != nil {
			p.logger.Warn("discovery refresh failed",
				"attempt", attempt,
				"error", err)
		} else if conv, ok := p.src.Find(listingID, counterpartID); ok {
			p.logger.Info("conversation discovered",
				"conversation_id", conv.ID,
				"listing_id", listingID,
				"attempts", attempt)
			p.src.ResolveConversation(conv)
			return conv.ID, nil
		}

		if attempt < p.maxAttempts {
			if err := sleep(ctx, p.retryDelay); err != nil {
				return 0, err
			}
		}
	}

	p.hub.Publish(TopicDiscovery, DiscoveryFailed{
		ListingID:     listingID,
		CounterpartID: counterpartID,
		Err:           ErrDiscoveryTimeout,
	})
	return 0, ErrDiscoveryTimeout
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ABOUTME: Synchronizer is the authoritative in-memory projection of
// ABOUTME: conversations and messages, and runs optimistic-send reconciliation.

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ogleapp/chat/internal/dedupe"
	"github.com/ogleapp/chat/internal/stomp"
)

// Synchronizer errors.
var (
	// ErrEmptyContent rejects blank message content before any I/O.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrConversationNotFound means the requested conversation is not in
	// the server's list for this user.
	ErrConversationNotFound = errors.New("conversation not found")
)

// seenWindow bounds how long server message ids are remembered for
// duplicate-delivery detection.
const (
	seenWindow   = 5 * time.Minute
	seenLimit    = 1024
	defaultPage  = 0
	pageSizeMin  = 1
	pageSizeNorm = 50
)

// Directory is the REST collaborator the synchronizer reads from. It is
// external to this subsystem; only the shapes below are consumed.
type Directory interface {
	// Conversations lists the session user's conversations.
	Conversations(ctx context.Context) ([]*Conversation, error)

	// Messages fetches one page of history, newest message first.
	Messages(ctx context.Context, conversationID int64, page, size int) (*MessagePage, error)

	// MarkRead marks a conversation read.
	MarkRead(ctx context.Context, conversationID int64) error
}

// Sender transmits a payload on the wire connection.
type Sender interface {
	Send(destination string, payload any) error
}

// Discoverer starts resolution of a conversation the server created
// implicitly after a first message.
type Discoverer interface {
	Start(ctx context.Context, listingID, counterpartID string)
}

// Config holds the synchronizer's wiring parameters.
type Config struct {
	// SendDestination is the fixed outbound destination for SEND frames.
	SendDestination string

	// PageSize is the history page size requested from the Directory.
	PageSize int
}

// provisionalThread identifies a conversation that exists client-side only:
// a first message was sent, the server id is not yet known.
type provisionalThread struct {
	listingID     string
	counterpartID string
}

// Synchronizer applies all writes to the conversation/message projection.
// Every mutation happens under one mutex: UI-triggered sends and
// frame-triggered reconciliation cannot race each other.
type Synchronizer struct {
	cfg        Config
	dir        Directory
	sender     Sender
	hub        *Hub
	discoverer Discoverer
	seen       *dedupe.Cache
	logger     *slog.Logger

	mu            sync.Mutex
	userID        string
	conversations []*Conversation
	current       *Conversation
	provisional   *provisionalThread
	messages      []*Message

	runCtx context.Context

	now func() time.Time // test hook
}

// NewSynchronizer creates a synchronizer. Pass nil logger for default.
func NewSynchronizer(cfg Config, dir Directory, sender Sender, hub *Hub, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize < pageSizeMin {
		cfg.PageSize = pageSizeNorm
	}
	return &Synchronizer{
		cfg:    cfg,
		dir:    dir,
		sender: sender,
		hub:    hub,
		seen:   dedupe.New(seenWindow, seenLimit),
		logger: logger.With("component", "synchronizer"),
		now:    time.Now,
	}
}

// SetUser records the local user id messages are attributed against.
// Must be called before Run or Send; the session layer does this at login.
func (s *Synchronizer) SetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// SetDiscoverer wires the discovery poller. Setter injection breaks the
// construction cycle: the poller reads conversations back through the
// synchronizer.
func (s *Synchronizer) SetDiscoverer(d Discoverer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverer = d
}

// Run consumes the inbound frame stream until ctx is cancelled or the
// channel closes. Malformed frames are logged and skipped; the stream is
// never terminated by a decode failure.
func (s *Synchronizer) Run(ctx context.Context, frames <-chan *stomp.Frame) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(ctx, f)
		}
	}
}

// handleFrame processes one decoded frame from the connection.
func (s *Synchronizer) handleFrame(ctx context.Context, f *stomp.Frame) {
	switch f.Command {
	case stomp.CommandMessage:
		var in InboundMessage
		if err := json.Unmarshal(f.Body, &in); err != nil {
			s.logger.Warn("unparseable message frame",
				"destination", f.Destination(),
				"error", err)
			return
		}
		if s.seen.CheckAndMark(strconv.FormatInt(in.ID, 10)) {
			s.logger.Debug("duplicate message delivery ignored", "message_id", in.ID)
			return
		}
		s.Reconcile(&in)

		// Previews and unread counts catch up eventually; a failed
		// refresh is reported, not fatal.
		go func() {
			if err := s.LoadConversations(ctx); err != nil {
				s.logger.Warn("conversation refresh failed", "error", err)
			}
		}()
	case stomp.CommandError:
		s.logger.Warn("server error frame",
			"message", f.Header("message"),
			"body", string(f.Body))
	default:
		// CONNECTED is handled by the connection layer; anything else
		// is noise the decoder already tagged as tolerable.
		s.logger.Debug("ignoring frame", "command", string(f.Command))
	}
}

// LoadConversations fetches the conversation list, replacing the local
// snapshot. Entries are deduplicated by id, first occurrence wins.
func (s *Synchronizer) LoadConversations(ctx context.Context) error {
	list, err := s.dir.Conversations(ctx)
	if err != nil {
		s.hub.Publish(TopicConversations, UpdateError{Op: "load conversations", Err: err})
		return fmt.Errorf("loading conversations: %w", err)
	}

	byID := make(map[int64]struct{}, len(list))
	deduped := make([]*Conversation, 0, len(list))
	for _, c := range list {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = struct{}{}
		deduped = append(deduped, c)
	}

	s.mu.Lock()
	s.conversations = deduped
	snapshot := s.snapshotConversationsLocked()
	s.mu.Unlock()

	s.hub.Publish(TopicConversations, ConversationsUpdated{Conversations: snapshot})
	return nil
}

// Refresh reloads the conversation list. It exists as a separate name for
// the Poller's narrow view of the synchronizer.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.LoadConversations(ctx)
}

// Find returns the conversation matching the (listing, counterpart) pair,
// if the current snapshot has one.
func (s *Synchronizer) Find(listingID, counterpartID string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.Matches(listingID, counterpartID) {
			return c, true
		}
	}
	return nil, false
}

// OpenConversation makes the conversation current and loads its most recent
// history page. The collaborator returns pages newest-first; the stored
// order is oldest-first, each message annotated with ownership. The
// conversation is marked read in the background once history is loaded.
func (s *Synchronizer) OpenConversation(ctx context.Context, conversationID int64) error {
	list, err := s.dir.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	var conv *Conversation
	for _, c := range list {
		if c.ID == conversationID {
			conv = c
			break
		}
	}
	if conv == nil {
		return fmt.Errorf("conversation %d: %w", conversationID, ErrConversationNotFound)
	}

	page, err := s.dir.Messages(ctx, conversationID, defaultPage, s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	s.mu.Lock()
	s.current = conv
	s.provisional = nil
	s.messages = make([]*Message, 0, len(page.Messages))
	// Reverse newest-first to oldest-first.
	for i := len(page.Messages) - 1; i >= 0; i-- {
		m := page.Messages[i]
		m.Own = m.SenderID == s.userID
		s.messages = append(s.messages, m)
	}
	snapshot := s.snapshotMessagesLocked()
	s.mu.Unlock()

	s.hub.Publish(TopicMessages, MessagesUpdated{ConversationID: conversationID, Messages: snapshot})

	s.MarkRead(ctx, conversationID)
	return nil
}

// OpenNewConversation prepares a provisional thread for a (listing,
// counterpart) pair that has no server-side conversation yet.
func (s *Synchronizer) OpenNewConversation(listingID, counterpartID string) {
	s.mu.Lock()
	s.current = nil
	s.provisional = &provisionalThread{listingID: listingID, counterpartID: counterpartID}
	s.messages = nil
	s.mu.Unlock()

	s.hub.Publish(TopicMessages, MessagesUpdated{ConversationID: 0, Messages: nil})
}

// CloseConversation stops tracking the open conversation. Background
// reconciliation of other conversations' previews continues.
func (s *Synchronizer) CloseConversation() {
	s.mu.Lock()
	s.current = nil
	s.provisional = nil
	s.messages = nil
	s.mu.Unlock()
}

// Send transmits a message optimistically: the pending message is appended
// to the local list before the wire write. If the connection is down the
// pending message stays visible but unconfirmed and the error is returned;
// no retry or queueing happens here. A send into a conversation with no
// known server id starts discovery.
func (s *Synchronizer) Send(ctx context.Context, listingID, recipientID, content string) error {
	if isBlank(content) {
		return ErrEmptyContent
	}

	s.mu.Lock()
	var convID *int64
	if s.current != nil {
		id := s.current.ID
		convID = &id
	}
	pending := &Message{
		ConversationID: convID,
		SenderID:       s.userID,
		Content:        content,
		Timestamp:      s.now(),
		Read:           true,
		Own:            true,
	}
	s.messages = append(s.messages, pending)
	needsDiscovery := s.current == nil
	if needsDiscovery && s.provisional == nil {
		s.provisional = &provisionalThread{listingID: listingID, counterpartID: recipientID}
	}
	snapshot := s.snapshotMessagesLocked()
	var openID int64
	if convID != nil {
		openID = *convID
	}
	discoverer := s.discoverer
	s.mu.Unlock()

	s.hub.Publish(TopicMessages, MessagesUpdated{ConversationID: openID, Messages: snapshot})

	err := s.sender.Send(s.cfg.SendDestination, SendPayload{
		ListingID:   listingID,
		RecipientID: recipientID,
		Content:     content,
	})
	if err != nil {
		s.logger.Warn("send failed, message left pending",
			"listing_id", listingID,
			"error", err)
		return err
	}

	if needsDiscovery && discoverer != nil {
		discoverer.Start(ctx, listingID, recipientID)
	}
	return nil
}

// Reconcile applies one inbound message to the local projection:
//
//  1. An own echo confirms the earliest pending message with identical
//     content, adopting the server id and timestamp. First match wins, so
//     concurrent identical sends resolve in send order.
//  2. Otherwise the message is appended if its id is new.
//  3. Otherwise it is a duplicate delivery and is discarded.
//
// Messages for conversations other than the open one only surface through
// the conversation-list refresh that follows delivery.
func (s *Synchronizer) Reconcile(in *InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != in.ConversationID {
		return
	}

	own := in.SenderID == s.userID
	if own {
		for _, m := range s.messages {
			if m.Pending() && m.Own && m.Content == in.Content {
				id := in.ID
				m.ID = &id
				m.Timestamp = in.Timestamp
				s.publishMessagesLocked()
				return
			}
		}
	}

	for _, m := range s.messages {
		if m.ID != nil && *m.ID == in.ID {
			return // duplicate delivery
		}
	}

	convID := in.ConversationID
	s.messages = append(s.messages, &Message{
		ID:             &in.ID,
		ConversationID: &convID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		Content:        in.Content,
		Timestamp:      in.Timestamp,
		Own:            own,
	})
	s.publishMessagesLocked()
}

// ResolveConversation is called by the Poller when discovery finds the
// server-assigned id for the provisional thread.
func (s *Synchronizer) ResolveConversation(conv *Conversation) {
	s.mu.Lock()
	if s.provisional != nil && conv.Matches(s.provisional.listingID, s.provisional.counterpartID) {
		s.provisional = nil
	}
	s.mu.Unlock()

	s.hub.Publish(TopicDiscovery, ConversationResolved{
		ConversationID: conv.ID,
		ListingID:      listingID(conv),
		CounterpartID:  conv.Counterpart(),
	})
}

// MarkRead marks the conversation read in the background. Failures are
// reported and do not block reconciliation.
func (s *Synchronizer) MarkRead(ctx context.Context, conversationID int64) {
	go func() {
		if err := s.dir.MarkRead(ctx, conversationID); err != nil {
			s.logger.Warn("mark read failed",
				"conversation_id", conversationID,
				"error", err)
		}
	}()
}

// Reset drops all in-memory state. Called on session teardown.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.conversations = nil
	s.current = nil
	s.provisional = nil
	s.messages = nil
	s.userID = ""
	s.mu.Unlock()
}

// Conversations returns a copy of the current conversation snapshot.
func (s *Synchronizer) Conversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotConversationsLocked()
}

// Messages returns a copy of the open conversation's message list,
// oldest first.
func (s *Synchronizer) Messages() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotMessagesLocked()
}

// Current returns the open conversation, or nil.
func (s *Synchronizer) Current() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Provisional returns the (listing, counterpart) pair of the open
// provisional thread, if any.
func (s *Synchronizer) Provisional() (listingID, counterpartID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provisional == nil {
		return "", "", false
	}
	return s.provisional.listingID, s.provisional.counterpartID, true
}

func (s *Synchronizer) snapshotConversationsLocked() []*Conversation {
	out := make([]*Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

func (s *Synchronizer) snapshotMessagesLocked() []*Message {
	out := make([]*Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// publishMessagesLocked publishes the message snapshot. Must be called with
// mu held; the hub send itself never blocks.
func (s *Synchronizer) publishMessagesLocked() {
	var id int64
	if s.current != nil {
		id = s.current.ID
	}
	s.hub.Publish(TopicMessages, MessagesUpdated{
		ConversationID: id,
		Messages:       s.snapshotMessagesLocked(),
	})
}

func listingID(c *Conversation) string {
	if c.Listing == nil {
		return ""
	}
	return c.Listing.PublicID
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ABOUTME: Update is the closed set of state-change notifications for views.
// ABOUTME: Interface with an unexported marker method keeps the union sealed.

package chat

// Update is a state-change notification published on the Hub. The set of
// variants is closed: only types in this package can satisfy the interface.
type Update interface {
	update()
}

// ConversationsUpdated carries a fresh snapshot of the conversation list.
type ConversationsUpdated struct {
	Conversations []*Conversation
}

// MessagesUpdated carries the current message list of the open conversation.
// ConversationID is 0 while the conversation is provisional (first message
// sent, server id not yet discovered).
type MessagesUpdated struct {
	ConversationID int64
	Messages       []*Message
}

// ConversationResolved reports that discovery found the server-assigned id
// for a conversation created implicitly by a first message.
type ConversationResolved struct {
	ConversationID int64
	ListingID      string
	CounterpartID  string
}

// DiscoveryFailed reports that discovery gave up after its retry bound.
type DiscoveryFailed struct {
	ListingID     string
	CounterpartID string
	Err           error
}

// UpdateError reports a recoverable failure of a background operation, such
// as a conversation-list refresh. The wire connection is unaffected.
type UpdateError struct {
	Op  string
	Err error
}

func (ConversationsUpdated) update() {}
func (MessagesUpdated) update()      {}
func (ConversationResolved) update() {}
func (DiscoveryFailed) update()      {}
func (UpdateError) update()          {}

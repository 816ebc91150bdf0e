// ABOUTME: Domain types for conversations and messages.
// ABOUTME: Mirrors the marketplace API shapes; wire payloads live alongside.

package chat

import "time"

// ListingRef is the listing a conversation is attached to.
type ListingRef struct {
	PublicID      string
	Title         string
	CoverImageURL string
	SellerID      string
	SellerName    string
}

// Conversation is one buyer/seller thread about a listing. Identity is the
// server-assigned ID; before the server has assigned one, a conversation is
// identified by its (listing, counterpart) pair.
type Conversation struct {
	ID              int64
	Listing         *ListingRef
	CounterpartID   string
	CounterpartName string

	// Preview of the most recent message, if any.
	LastMessage   string
	LastMessageAt time.Time

	UnreadCount int
}

// Counterpart returns the other participant's id, falling back to the
// listing's seller when the server omitted it.
func (c *Conversation) Counterpart() string {
	if c.CounterpartID != "" {
		return c.CounterpartID
	}
	if c.Listing != nil {
		return c.Listing.SellerID
	}
	return ""
}

// Matches reports whether this conversation is the thread for the given
// (listing, counterpart) pair. Used to recognize a conversation the server
// created implicitly after a first message.
func (c *Conversation) Matches(listingID, counterpartID string) bool {
	return c.Listing != nil &&
		c.Listing.PublicID == listingID &&
		c.Counterpart() == counterpartID
}

// Message is a single chat message. A nil ID marks a pending message: sent
// optimistically and not yet confirmed by a server echo. Own is derived
// locally and never transmitted.
type Message struct {
	ID             *int64
	ConversationID *int64
	SenderID       string
	SenderName     string
	Content        string
	Timestamp      time.Time
	Read           bool
	Own            bool
}

// Pending reports whether the message still awaits its server echo.
func (m *Message) Pending() bool { return m.ID == nil }

// MessagePage is one page of conversation history as returned by the API,
// newest message first.
type MessagePage struct {
	Messages      []*Message
	TotalPages    int
	TotalElements int64
	First         bool
	Last          bool
}

// SendPayload is the JSON body of an outbound SEND frame.
type SendPayload struct {
	ListingID   string `json:"listingId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// InboundMessage is the JSON body of an inbound MESSAGE frame.
type InboundMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

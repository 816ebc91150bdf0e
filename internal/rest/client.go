// ABOUTME: Bearer-authenticated HTTP client for the conversation REST API.
// ABOUTME: Maps wire DTOs to domain types; 401 raises the auth-required signal.

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ogleapp/chat/internal/chat"
)

// ErrAuthRequired means the credential was rejected. The session layer
// observes this through the auth-required handler and tears down.
var ErrAuthRequired = errors.New("authentication required")

const requestTimeout = 15 * time.Second

// TokenSource supplies the current bearer credential. The session layer
// implements it; the token can change across logins.
type TokenSource interface {
	Token() string
}

// Client talks to the conversation endpoints.
type Client struct {
	baseURL      string
	http         *http.Client
	tokens       TokenSource
	authRequired func()
	logger       *slog.Logger
}

// NewClient creates a client. authRequired is invoked on any 401 response
// and may be nil. Pass nil logger for default.
func NewClient(baseURL string, tokens TokenSource, authRequired func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: requestTimeout},
		tokens:       tokens,
		authRequired: authRequired,
		logger:       logger.With("component", "rest"),
	}
}

// Wire DTOs. Field names follow the backend's JSON contract.

type sellerDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listingCoverDTO struct {
	PublicID      string     `json:"publicId"`
	Title         string     `json:"title"`
	Seller        *sellerDTO `json:"seller"`
	CoverImageURL string     `json:"coverImageUrl"`
}

type conversationDTO struct {
	ID                   int64            `json:"id"`
	Listing              *listingCoverDTO `json:"listing"`
	OtherParticipantID   string           `json:"otherParticipantId"`
	OtherParticipantName string           `json:"otherParticipantName"`
	LastMessageContent   string           `json:"lastMessageContent"`
	LastMessageTimestamp *time.Time       `json:"lastMessageTimestamp"`
	UnreadCount          int              `json:"unreadCount"`
}

type messageDTO struct {
	ID             *int64    `json:"id"`
	ConversationID *int64    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"isRead"`
}

type messagePageDTO struct {
	Content       []*messageDTO `json:"content"`
	TotalPages    int           `json:"totalPages"`
	TotalElements int64         `json:"totalElements"`
	First         bool          `json:"first"`
	Last          bool          `json:"last"`
}

// Conversations lists the session user's conversations.
func (c *Client) Conversations(ctx context.Context) ([]*chat.Conversation, error) {
	var dtos []*conversationDTO
	if err := c.get(ctx, "/api/conversations", &dtos); err != nil {
		return nil, err
	}

	out := make([]*chat.Conversation, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Messages fetches one history page for a conversation, newest first.
func (c *Client) Messages(ctx context.Context, conversationID int64, page, size int) (*chat.MessagePage, error) {
	path := fmt.Sprintf("/api/conversations/%d/messages?page=%d&size=%d", conversationID, page, size)
	var dto messagePageDTO
	if err := c.get(ctx, path, &dto); err != nil {
		return nil, err
	}

	msgs := make([]*chat.Message, 0, len(dto.Content))
	for _, m := range dto.Content {
		msgs = append(msgs, &chat.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			SenderName:     m.SenderName,
			Content:        m.Content,
			Timestamp:      m.Timestamp,
			Read:           m.IsRead,
		})
	}
	return &chat.MessagePage{
		Messages:      msgs,
		TotalPages:    dto.TotalPages,
		TotalElements: dto.TotalElements,
		First:         dto.First,
		Last:          dto.Last,
	}, nil
}

// MarkRead marks a conversation read.
func (c *Client) MarkRead(ctx context.Context, conversationID int64) error {
	path := fmt.Sprintf("/api/conversations/%d/read", conversationID)
	return c.do(ctx, http.MethodPost, path, nil)
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

// do runs one authenticated request. Non-2xx responses become errors; 401
// additionally fires the auth-required signal.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("credential rejected", "path", path)
		if c.authRequired != nil {
			c.authRequired()
		}
		return ErrAuthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// toDomain maps the wire conversation to the domain type.
func (d *conversationDTO) toDomain() *chat.Conversation {
	conv := &chat.Conversation{
		ID:              d.ID,
		CounterpartID:   d.OtherParticipantID,
		CounterpartName: d.OtherParticipantName,
		LastMessage:     d.LastMessageContent,
		UnreadCount:     d.UnreadCount,
	}
	if d.LastMessageTimestamp != nil {
		conv.LastMessageAt = *d.LastMessageTimestamp
	}
	if d.Listing != nil {
		ref := &chat.ListingRef{
			PublicID:      d.Listing.PublicID,
			Title:         d.Listing.Title,
			CoverImageURL: d.Listing.CoverImageURL,
		}
		if d.Listing.Seller != nil {
			ref.SellerID = d.Listing.Seller.ID
			ref.SellerName = d.Listing.Seller.Name
		}
		conv.Listing = ref
	}
	return conv
}

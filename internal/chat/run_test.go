// ABOUTME: Tests for the inbound frame consumption loop.
// ABOUTME: Covers payload parsing, tolerance to malformed bodies, duplicates.

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ogleapp/chat/internal/stomp"
)

func messageFrame(body string) *stomp.Frame {
	return &stomp.Frame{
		Command: stomp.CommandMessage,
		Headers: map[string]string{"destination": "/user/queue/messages"},
		Body:    []byte(body),
	}
}

func TestRun_AppliesInboundMessages(t *testing.T) {
	dir := newMockDirectory()
	dir.conversations = []*Conversation{testConversation(9, "L1", "R1")}
	s := newTestSynchronizer(t, dir, &mockSender{connected: true})
	require.NoError(t, s.OpenConversation(context.Background(), 9))

	frames := make(chan *stomp.Frame, 8)
	go s.Run(context.Background(), frames)

	frames <- messageFrame(`{"id":7,"conversationId":9,"senderId":"R1","senderName":"Rhea","content":"hello","timestamp":"2026-08-28T10:00:00Z"}`)

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRun_SkipsMalformedBodyAndContinues(t *testing.T) {
	dir := newMockDirectory()
	dir.conversations = []*Conversation{testConversation(9, "L1", "R1")}
	s := newTestSynchronizer(t, dir, &mockSender{connected: true})
	require.NoError(t, s.OpenConversation(context.Background(), 9))

	frames := make(chan *stomp.Frame, 8)
	go s.Run(context.Background(), frames)

	frames <- messageFrame(`{not json`)
	frames <- messageFrame(`{"id":7,"conversationId":9,"senderId":"R1","content":"still alive","timestamp":"2026-08-28T10:00:00Z"}`)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Content == "still alive"
	}, time.Second, 10*time.Millisecond)
}

func TestRun_DropsDuplicateDeliveries(t *testing.T) {
	dir := newMockDirectory()
	dir.conversations = []*Conversation{testConversation(9, "L1", "R1")}
	s := newTestSynchronizer(t, dir, &mockSender{connected: true})
	require.NoError(t, s.OpenConversation(context.Background(), 9))

	frames := make(chan *stomp.Frame, 8)
	go s.Run(context.Background(), frames)

	body := `{"id":42,"conversationId":9,"senderId":"R1","content":"hi","timestamp":"2026-08-28T10:00:00Z"}`
	frames <- messageFrame(body)
	frames <- messageFrame(body)

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 10*time.Millisecond)

	// Give the second frame time to arrive; the count must not grow.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Messages(), 1)
}

func TestRun_RefreshesConversationsAfterDelivery(t *testing.T) {
	dir := newMockDirectory()
	dir.conversations = []*Conversation{testConversation(9, "L1", "R1")}
	s := newTestSynchronizer(t, dir, &mockSender{connected: true})
	require.NoError(t, s.OpenConversation(context.Background(), 9))

	dir.mu.Lock()
	before := dir.listCalls
	dir.mu.Unlock()

	frames := make(chan *stomp.Frame, 8)
	go s.Run(context.Background(), frames)

	frames <- messageFrame(`{"id":7,"conversationId":9,"senderId":"R1","content":"hello","timestamp":"2026-08-28T10:00:00Z"}`)

	require.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return dir.listCalls > before
	}, time.Second, 10*time.Millisecond, "previews refresh eventually after delivery")
}

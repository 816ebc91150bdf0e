// ABOUTME: Tests for the wire frame codec.
// ABOUTME: Covers exact encoding, tolerant decoding, and the send round-trip.

package stomp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConnect(t *testing.T) {
	got := EncodeConnect("tok-123", "", "")

	want := "CONNECT\n" +
		"accept-version:1.1,1.2\n" +
		"heart-beat:10000,10000\n" +
		"Authorization:Bearer tok-123\n" +
		"\n\x00"
	assert.Equal(t, want, string(got))
}

func TestEncodeSubscribe(t *testing.T) {
	got := EncodeSubscribe("sub-0", "/user/queue/messages")

	want := "SUBSCRIBE\n" +
		"id:sub-0\n" +
		"destination:/user/queue/messages\n" +
		"\n\x00"
	assert.Equal(t, want, string(got))
}

func TestEncodeSend(t *testing.T) {
	got := EncodeSend("/app/chat.sendMessage", []byte(`{"content":"hi"}`))

	want := "SEND\n" +
		"destination:/app/chat.sendMessage\n" +
		"content-type:application/json\n" +
		"\n" +
		`{"content":"hi"}` + "\x00"
	assert.Equal(t, want, string(got))
}

func TestEncodeDisconnect(t *testing.T) {
	assert.Equal(t, "DISCONNECT\n\n\x00", string(EncodeDisconnect()))
}

func TestDecode_Connected(t *testing.T) {
	f, err := Decode([]byte("CONNECTED\nversion:1.2\nheart-beat:10000,10000\n\n\x00"))
	require.NoError(t, err)

	assert.Equal(t, CommandConnected, f.Command)
	assert.Equal(t, "1.2", f.Header("version"))
}

func TestDecode_Message(t *testing.T) {
	raw := "MESSAGE\n" +
		"destination:/user/queue/messages\n" +
		"subscription:sub-0\n" +
		"message-id:7\n" +
		"\n" +
		`{"id":42,"senderId":"u1","content":"hi"}` + "\x00"

	f, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, CommandMessage, f.Command)
	assert.Equal(t, "/user/queue/messages", f.Destination())
	assert.JSONEq(t, `{"id":42,"senderId":"u1","content":"hi"}`, string(f.Body))
}

func TestDecode_HeaderValueWithColon(t *testing.T) {
	f, err := Decode([]byte("CONNECT\nAuthorization:Bearer abc.def.ghi\n\n\x00"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc.def.ghi", f.Header("Authorization"))
}

func TestDecode_Error(t *testing.T) {
	f, err := Decode([]byte("ERROR\nmessage:bad credentials\n\nAccess denied\x00"))
	require.NoError(t, err)

	assert.Equal(t, CommandError, f.Command)
	assert.Equal(t, "bad credentials", f.Header("message"))
	assert.Equal(t, "Access denied", string(f.Body))
}

func TestDecode_UnknownVerbIsTolerated(t *testing.T) {
	raw := []byte("RECEIPT\nreceipt-id:77\n\n\x00")

	f, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, CommandUnknown, f.Command)
	assert.Equal(t, raw, f.Body)
}

func TestDecode_HeartBeatIsEmpty(t *testing.T) {
	_, err := Decode([]byte("\n"))
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecode_EmptyInput(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

// TestSendRoundTrip encodes an outbound payload and decodes the equivalent
// server echo, recovering the same payload fields.
func TestSendRoundTrip(t *testing.T) {
	payload := map[string]string{
		"listingId":   "L1",
		"recipientId": "R1",
		"content":     "hi",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	sent := EncodeSend("/app/chat.sendMessage", body)

	// The server echoes the body back on a MESSAGE frame.
	echoed := "MESSAGE\ndestination:/user/queue/messages\n\n" + string(body) + "\x00"
	f, err := Decode([]byte(echoed))
	require.NoError(t, err)
	require.Equal(t, CommandMessage, f.Command)

	var got map[string]string
	require.NoError(t, json.Unmarshal(f.Body, &got))
	assert.Equal(t, payload, got)

	// And the SEND frame itself decodes back to the same body.
	sf, err := Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, CommandSend, sf.Command)
	assert.JSONEq(t, string(body), string(sf.Body))
}

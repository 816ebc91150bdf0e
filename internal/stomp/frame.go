// ABOUTME: Frame codec for the chat wire sub-protocol (STOMP-style text frames).
// ABOUTME: Encoding is exact; decoding is tolerant of unknown frame types.

package stomp

import (
	"errors"
	"strings"
)

// Wire format:
//
//	<VERB>\n
//	<header-name>:<header-value>\n   (zero or more)
//	\n
//	<body>\0
//
// Header values may contain colons (e.g. "Authorization:Bearer x.y.z"), so
// headers are split at the first colon only.

// Command identifies the frame type.
type Command string

// Frame commands used by the protocol.
const (
	CommandConnect    Command = "CONNECT"
	CommandConnected  Command = "CONNECTED"
	CommandSubscribe  Command = "SUBSCRIBE"
	CommandSend       Command = "SEND"
	CommandMessage    Command = "MESSAGE"
	CommandDisconnect Command = "DISCONNECT"
	CommandError      Command = "ERROR"

	// CommandUnknown marks frames whose verb is not recognized. Decoding
	// never fails on these; consumers skip them.
	CommandUnknown Command = ""
)

// Negotiation values sent in the CONNECT frame.
const (
	DefaultAcceptVersion = "1.1,1.2"
	DefaultHeartBeat     = "10000,10000"
)

const frameTerminator = "\x00"

// ErrEmptyFrame is returned when decoding input that contains no frame at all.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is a decoded protocol frame.
type Frame struct {
	Command Command
	Headers map[string]string
	Body    []byte
}

// Header returns the named header value, or "" if absent.
func (f *Frame) Header(name string) string {
	return f.Headers[name]
}

// Destination returns the destination header of a MESSAGE or SEND frame.
func (f *Frame) Destination() string {
	return f.Headers["destination"]
}

// EncodeConnect builds a CONNECT frame carrying the bearer credential and
// the heart-beat negotiation.
func EncodeConnect(token, acceptVersion, heartBeat string) []byte {
	if acceptVersion == "" {
		acceptVersion = DefaultAcceptVersion
	}
	if heartBeat == "" {
		heartBeat = DefaultHeartBeat
	}
	var b strings.Builder
	b.WriteString("CONNECT\n")
	b.WriteString("accept-version:" + acceptVersion + "\n")
	b.WriteString("heart-beat:" + heartBeat + "\n")
	b.WriteString("Authorization:Bearer " + token + "\n")
	b.WriteString("\n")
	b.WriteString(frameTerminator)
	return []byte(b.String())
}

// EncodeSubscribe builds a SUBSCRIBE frame for the given destination.
func EncodeSubscribe(id, destination string) []byte {
	var b strings.Builder
	b.WriteString("SUBSCRIBE\n")
	b.WriteString("id:" + id + "\n")
	b.WriteString("destination:" + destination + "\n")
	b.WriteString("\n")
	b.WriteString(frameTerminator)
	return []byte(b.String())
}

// EncodeSend builds a SEND frame with a JSON body.
func EncodeSend(destination string, body []byte) []byte {
	var b strings.Builder
	b.WriteString("SEND\n")
	b.WriteString("destination:" + destination + "\n")
	b.WriteString("content-type:application/json\n")
	b.WriteString("\n")
	b.Write(body)
	b.WriteString(frameTerminator)
	return []byte(b.String())
}

// EncodeDisconnect builds a DISCONNECT frame.
func EncodeDisconnect() []byte {
	return []byte("DISCONNECT\n\n" + frameTerminator)
}

// Decode parses a raw frame. Unrecognized verbs yield a frame with
// CommandUnknown and the raw bytes as the body rather than an error, so a
// malformed or novel frame never terminates the inbound pipeline. Only
// entirely empty input returns ErrEmptyFrame.
func Decode(data []byte) (*Frame, error) {
	raw := strings.TrimRight(string(data), "\x00")
	if strings.TrimSpace(raw) == "" {
		// Bare newlines are heart-beats on STOMP connections.
		return nil, ErrEmptyFrame
	}

	head, body, hasBody := strings.Cut(raw, "\n\n")
	lines := strings.Split(head, "\n")

	cmd := parseCommand(strings.TrimSpace(lines[0]))
	if cmd == CommandUnknown {
		return &Frame{Command: CommandUnknown, Headers: map[string]string{}, Body: data}, nil
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			// Not header-shaped; skip rather than fail.
			continue
		}
		headers[name] = value
	}

	f := &Frame{Command: cmd, Headers: headers}
	if hasBody {
		f.Body = []byte(body)
	}
	return f, nil
}

// parseCommand maps a verb line to a known command.
func parseCommand(verb string) Command {
	switch Command(verb) {
	case CommandConnect, CommandConnected, CommandSubscribe, CommandSend,
		CommandMessage, CommandDisconnect, CommandError:
		return Command(verb)
	default:
		return CommandUnknown
	}
}

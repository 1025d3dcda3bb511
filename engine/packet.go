package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PacketKind identifies the Engine.IO v3 wire packet type. The numeric values
// match the single ASCII digit that prefixes every encoded packet.
type PacketKind byte

const (
	PacketOpen    PacketKind = '0'
	PacketClose   PacketKind = '1'
	PacketPing    PacketKind = '2'
	PacketPong    PacketKind = '3'
	PacketMessage PacketKind = '4'
	PacketUpgrade PacketKind = '5'
	PacketNoop    PacketKind = '6'

	// PacketKindUnparsed marks a frame that didn't start with a type digit at
	// all (so it's not one of the kinds above, and not a malformed one
	// either). Text carries the frame verbatim; dispatch is responsible for
	// trying the JSON-error-object fallback before giving up on it.
	PacketKindUnparsed PacketKind = 0
)

// String renders the packet kind as a lowercase name for log output (not as
// its wire digit).
func (k PacketKind) String() string {
	switch k {
	case PacketOpen:
		return "open"
	case PacketClose:
		return "close"
	case PacketPing:
		return "ping"
	case PacketPong:
		return "pong"
	case PacketMessage:
		return "message"
	case PacketUpgrade:
		return "upgrade"
	case PacketNoop:
		return "noop"
	case PacketKindUnparsed:
		return "unparsed"
	default:
		return fmt.Sprintf("unknown(%c)", byte(k))
	}
}

// Packet is a single decoded Engine.IO v3 packet. A packet's payload is
// either text or binary, never both; Binary is nil for text packets.
type Packet struct {
	Kind   PacketKind
	Text   string
	Binary []byte
}

// IsBinary reports whether the packet carries a raw binary payload.
func (p Packet) IsBinary() bool { return p.Binary != nil }

const base64BinaryMarker = "b4"

// EncodeText renders a text packet (or a packet whose binary payload has
// been upgraded to base64, per the historical b4 convention) as it appears
// standalone on a WebSocket text frame or as one frame in a polling payload.
//
// doubleEncodeUTF8 reproduces a long-standing server quirk: the payload's
// UTF-8 bytes are reinterpreted as Latin-1 code points before being written
// out. This only ever applies to non-NOOP text frames, never to
// binary/base64 frames.
func EncodeText(kind PacketKind, text string, doubleEncodeUTF8 bool) string {
	if doubleEncodeUTF8 && kind != PacketNoop {
		text = latin1OfUTF8(text)
	}
	return string(byte(kind)) + text
}

// EncodeBinaryPolling renders a binary packet as a base64 frame prefixed by
// the "b4" marker, suitable for inclusion in a polling payload.
func EncodeBinaryPolling(data []byte) string {
	return base64BinaryMarker + base64.StdEncoding.EncodeToString(data)
}

// EncodeBinaryWebSocket renders a binary packet as the raw bytes that go
// out on a single WebSocket binary frame: one leading type byte (always
// PacketMessage for user binary payloads) followed by the raw data.
func EncodeBinaryWebSocket(kind PacketKind, data []byte) []byte {
	out := make([]byte, 1+len(data))
	out[0] = byte(kind)
	copy(out[1:], data)
	return out
}

// DecodeWebSocketText decodes a single WebSocket text message: the first
// rune is the type digit, the remainder is the payload. A message that
// doesn't start with a type digit at all is not an error here; it comes
// back as a PacketKindUnparsed packet carrying the raw message, for dispatch
// to try as a JSON error object before giving up on it.
func DecodeWebSocketText(msg string, doubleEncodeUTF8 bool) (Packet, error) {
	if len(msg) == 0 {
		return Packet{}, fmt.Errorf("engine: empty websocket text message")
	}
	kind, text, err := splitKind(msg)
	if err != nil {
		return Packet{Kind: PacketKindUnparsed, Text: msg}, nil
	}
	if doubleEncodeUTF8 && kind != PacketNoop {
		text = utf8OfLatin1(text)
	}
	return Packet{Kind: kind, Text: text}, nil
}

// protocolErrorPayload is the shape of the JSON error object a server sends
// in place of a typed packet: {"message": "..."}.
type protocolErrorPayload struct {
	Message string `json:"message"`
}

// ParseProtocolErrorMessage attempts to parse frame as the JSON error object
// a server sends when it wants to report a protocol-level error instead of a
// typed packet. It reports ok=false for anything that isn't a JSON object
// with a non-empty "message" field.
func ParseProtocolErrorMessage(frame string) (message string, ok bool) {
	var payload protocolErrorPayload
	if err := json.Unmarshal([]byte(frame), &payload); err != nil || payload.Message == "" {
		return "", false
	}
	return payload.Message, true
}

// DecodeWebSocketBinary strips the single leading framing byte from a
// WebSocket binary message and returns the remaining payload as a binary
// MESSAGE packet.
func DecodeWebSocketBinary(msg []byte) (Packet, error) {
	if len(msg) == 0 {
		return Packet{}, fmt.Errorf("engine: empty websocket binary message")
	}
	return Packet{Kind: PacketMessage, Binary: msg[1:]}, nil
}

func splitKind(s string) (PacketKind, string, error) {
	if !isDigit(s[0]) {
		return 0, "", fmt.Errorf("engine: %w: %q", errMalformedPacket, s)
	}
	return PacketKind(s[0]), s[1:], nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// EncodePollingPayload concatenates a batch of already wire-formatted polling
// frames (as produced by EncodeText / EncodeBinaryPolling) into the
// "<charlen>:<frame>" sequence the HTTP POST body uses. charlen is the rune
// count of the frame, never the byte count — this is what lets the server
// split a payload containing multi-byte UTF-8 text unambiguously.
func EncodePollingPayload(frames []string) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(strconv.Itoa(runeCount(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return b.String()
}

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// DecodePollingPayload splits a raw polling HTTP response body into decoded
// packets. Binary frames are recognized by the "b4" prefix and base64
// decoded; everything else is treated as a text packet per DecodeWebSocketText
// (the wire framing is identical once the charlen is stripped).
func DecodePollingPayload(body string, doubleEncodeUTF8 bool) ([]Packet, error) {
	var packets []Packet
	for len(body) > 0 {
		frame, rest, err := splitPollingFrame(body)
		if err != nil {
			return packets, err
		}
		body = rest

		if strings.HasPrefix(frame, base64BinaryMarker) {
			data, err := base64.StdEncoding.DecodeString(frame[len(base64BinaryMarker):])
			if err != nil {
				return packets, fmt.Errorf("engine: decoding b4 frame: %w", err)
			}
			packets = append(packets, Packet{Kind: PacketMessage, Binary: data})
			continue
		}

		pkt, err := DecodeWebSocketText(frame, doubleEncodeUTF8)
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// splitPollingFrame consumes one "<charlen>:<frame>" unit from the front of
// body, where charlen counts runes in the frame, and returns the frame text
// plus whatever remains unconsumed.
func splitPollingFrame(body string) (frame string, rest string, err error) {
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("engine: %w: missing length prefix in %q", errMalformedPacket, body)
	}
	n, err := strconv.Atoi(body[:colon])
	if err != nil {
		return "", "", fmt.Errorf("engine: %w: bad length prefix: %w", errMalformedPacket, err)
	}

	runes := []rune(body[colon+1:])
	if n > len(runes) {
		return "", "", fmt.Errorf("engine: %w: length %d exceeds remaining payload", errMalformedPacket, n)
	}
	frame = string(runes[:n])
	rest = string(runes[n:])
	return frame, rest, nil
}

// latin1OfUTF8 reinterprets the UTF-8 encoding of s as a sequence of Latin-1
// code points, matching the historical double-encoding quirk some Engine.IO
// servers expect. It is the inverse of utf8OfLatin1.
func latin1OfUTF8(s string) string {
	b := []byte(s)
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// utf8OfLatin1 reverses latin1OfUTF8: each rune of s is truncated to a single
// byte and the result is interpreted as UTF-8.
func utf8OfLatin1(s string) string {
	runes := []rune(s)
	b := make([]byte, len(runes))
	for i, r := range runes {
		b[i] = byte(r)
	}
	return string(b)
}

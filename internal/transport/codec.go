package transport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The realtime endpoint speaks socket.io over an engine.io websocket.
// Every frame is a text message whose first byte is the engine.io packet
// type; a leading '4' carries a socket.io packet whose own type byte
// follows, optionally trailed by a numeric ack identifier and a JSON array.
type frameKind int

const (
	frameOpen frameKind = iota
	framePing
	framePong
	frameConnect
	frameDisconnect
	frameEvent
	frameAck
	frameError
)

type frame struct {
	kind frameKind

	// ackID is the correlation identifier for event and ack frames,
	// or -1 when the frame does not carry one.
	ackID int64

	// name and data are set for event frames.
	name string
	data json.RawMessage

	// body is the undecoded remainder, kept for ack and error frames.
	body string
}

// Pre-encoded frames the client sends verbatim.
var (
	pongFrame    = []byte("3")
	connectFrame = []byte("40")
)

// parseFrame decodes one inbound text message.
func parseFrame(raw []byte) (frame, error) {
	if len(raw) == 0 {
		return frame{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	switch raw[0] {
	case '0':
		return frame{kind: frameOpen, ackID: -1, body: string(raw[1:])}, nil
	case '2':
		return frame{kind: framePing, ackID: -1}, nil
	case '3':
		return frame{kind: framePong, ackID: -1}, nil
	case '4':
		return parseSocketFrame(raw[1:])
	default:
		return frame{}, fmt.Errorf("%w: unknown packet type %q", ErrMalformedFrame, raw[0])
	}
}

func parseSocketFrame(raw []byte) (frame, error) {
	if len(raw) == 0 {
		return frame{}, fmt.Errorf("%w: truncated socket.io packet", ErrMalformedFrame)
	}

	switch raw[0] {
	case '0':
		return frame{kind: frameConnect, ackID: -1, body: string(raw[1:])}, nil
	case '1':
		return frame{kind: frameDisconnect, ackID: -1}, nil
	case '2':
		return parseEventFrame(raw[1:])
	case '3':
		id, rest := splitAckID(raw[1:])
		return frame{kind: frameAck, ackID: id, body: string(rest)}, nil
	case '4':
		return frame{kind: frameError, ackID: -1, body: string(raw[1:])}, nil
	default:
		return frame{}, fmt.Errorf("%w: unknown socket.io type %q", ErrMalformedFrame, raw[0])
	}
}

func parseEventFrame(raw []byte) (frame, error) {
	id, rest := splitAckID(raw)

	var elems []json.RawMessage
	if err := json.Unmarshal(rest, &elems); err != nil {
		return frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(elems) == 0 {
		return frame{}, fmt.Errorf("%w: empty event array", ErrMalformedFrame)
	}

	var name string
	if err := json.Unmarshal(elems[0], &name); err != nil {
		return frame{}, fmt.Errorf("%w: event name: %v", ErrMalformedFrame, err)
	}

	f := frame{kind: frameEvent, ackID: id, name: name}
	if len(elems) > 1 {
		f.data = elems[1]
	}
	return f, nil
}

// splitAckID peels the optional leading ack identifier off a packet body.
// Returns -1 when no identifier is present.
func splitAckID(raw []byte) (int64, []byte) {
	i := 0
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, raw
	}

	id, err := strconv.ParseInt(string(raw[:i]), 10, 64)
	if err != nil {
		return -1, raw
	}
	return id, raw[i:]
}

// encodeEvent builds an outbound event frame. Pass ackID < 0 for a
// fire-and-forget emit.
func encodeEvent(name string, data any, ackID int64) ([]byte, error) {
	arr := []any{name}
	if data != nil {
		arr = append(arr, data)
	}

	body, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("encode event %q: %w", name, err)
	}

	prefix := "42"
	if ackID >= 0 {
		prefix += strconv.FormatInt(ackID, 10)
	}
	return append([]byte(prefix), body...), nil
}

// isAuthExpired reports whether an error frame indicates the bearer token
// was rejected. The server phrases this as a "jwt expired" message.
func isAuthExpired(f frame) bool {
	return f.kind == frameError && strings.Contains(strings.ToLower(f.body), "jwt expired")
}

package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// OpenPacket is the payload of the Engine.IO open packet
type OpenPacket struct {
	Sid          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// Heartbeat returns how long the connection may stay silent before it is considered dead
func (p *OpenPacket) Heartbeat() time.Duration {
	interval := time.Duration(p.PingInterval) * time.Millisecond
	timeout := time.Duration(p.PingTimeout) * time.Millisecond
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	return interval + timeout
}

// EnginePacket is one Engine.IO packet
type EnginePacket struct {
	Type byte
	Data []byte
}

// DecodeEnginePacket decodes one text Engine.IO packet
func DecodeEnginePacket(b []byte) (EnginePacket, error) {
	if len(b) == 0 {
		return EnginePacket{}, ErrInvalidProtocol.WithMsg("empty engine packet")
	}
	if b[0] < EIOOpen || b[0] > EIONoop {
		return EnginePacket{}, ErrInvalidProtocol.WithMsg("unknown engine packet type " + strconv.Quote(string(b[:1])))
	}
	return EnginePacket{Type: b[0], Data: b[1:]}, nil
}

// EncodeEnginePacket encodes one text Engine.IO packet
func EncodeEnginePacket(t byte, data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, t)
	return append(out, data...)
}

// SplitPayload splits a long-polling payload into its packets
func SplitPayload(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.Split(b, []byte{PayloadSeparator})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// JoinPayload joins packets into one long-polling payload
func JoinPayload(packets [][]byte) []byte {
	return bytes.Join(packets, []byte{PayloadSeparator})
}

// SocketPacket is one Socket.IO packet carried by an Engine.IO message
type SocketPacket struct {
	Type      byte
	Namespace string
	AckId     int // -1 when absent
	Data      json.RawMessage
}

// DecodeSocketPacket decodes <type>[<attachments>-][<nsp>,][<ackId>][<json>]
func DecodeSocketPacket(b []byte) (*SocketPacket, error) {
	if len(b) == 0 {
		return nil, ErrInvalidProtocol.WithMsg("empty socket packet")
	}
	p := &SocketPacket{Type: b[0], Namespace: "/", AckId: -1}
	if p.Type < SIOConnect || p.Type > '6' {
		return nil, ErrInvalidProtocol.WithMsg("unknown socket packet type " + strconv.Quote(string(b[:1])))
	}
	rest := b[1:]

	// binary attachments count, e.g. 451-["ev",{"_placeholder":true,"num":0}]
	if i := bytes.IndexByte(rest, '-'); i > 0 && isDigits(rest[:i]) {
		return nil, ErrInvalidProtocol.WithMsg("binary packets are not supported")
	}

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n > 0 {
		id, err := strconv.Atoi(string(rest[:n]))
		if err != nil {
			return nil, ErrInvalidProtocol.Wrap(err)
		}
		p.AckId = id
		rest = rest[n:]
	}

	if len(rest) > 0 {
		if !json.Valid(rest) {
			return nil, ErrInvalidProtocol.WithMsg("socket packet payload is not json")
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}

// Event splits an EVENT packet into its name and arguments
func (p *SocketPacket) Event() (string, []json.RawMessage, error) {
	if p.Type != SIOEvent {
		return "", nil, ErrInvalidProtocol.WithMsg("not an event packet")
	}
	arr := gjson.ParseBytes(p.Data)
	if !arr.IsArray() {
		return "", nil, ErrInvalidProtocol.WithMsg("event payload is not an array")
	}
	items := arr.Array()
	if len(items) == 0 || items[0].Type != gjson.String {
		return "", nil, ErrInvalidProtocol.WithMsg("event payload has no name")
	}
	args := make([]json.RawMessage, 0, len(items)-1)
	for _, item := range items[1:] {
		args = append(args, json.RawMessage(item.Raw))
	}
	return items[0].Str, args, nil
}

// ErrorMessage returns the message of a CONNECT_ERROR packet
func (p *SocketPacket) ErrorMessage() string {
	r := gjson.ParseBytes(p.Data)
	if r.Type == gjson.String {
		return r.Str
	}
	if msg := r.Get("message").String(); msg != "" {
		return msg
	}
	return string(p.Data)
}

// EncodeConnect builds the engine message carrying a Socket.IO CONNECT with optional auth
func EncodeConnect(auth interface{}) ([]byte, error) {
	out := []byte{EIOMessage, SIOConnect}
	if auth == nil {
		return out, nil
	}
	data, err := json.Marshal(auth)
	if err != nil {
		return nil, err
	}
	return append(out, data...), nil
}

// EncodeEvent builds the engine message carrying a Socket.IO EVENT
func EncodeEvent(event string, args ...interface{}) ([]byte, error) {
	payload := make([]interface{}, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+2)
	out = append(out, EIOMessage, SIOEvent)
	return append(out, data...), nil
}

// EncodeDisconnect builds the engine message carrying a Socket.IO DISCONNECT
func EncodeDisconnect() []byte {
	return []byte{EIOMessage, SIODisconnect}
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

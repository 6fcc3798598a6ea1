package entity

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/tidwall/gjson"
)

// Message is the client-facing message shape. While Pending, Id equals ClientId.
type Message struct {
	Id        string    `json:"id"`
	ClientId  string    `json:"client_id,omitempty"`
	ChatId    string    `json:"chat_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	FileUrl   string    `json:"fileUrl,omitempty"`
	SenderId  string    `json:"sender_id"`
	Sender    string    `json:"sender"`
	IsOwn     bool      `json:"isOwn"`
	CreatedAt time.Time `json:"created_at"`
	Timestamp string    `json:"timestamp"`
	Pending   bool      `json:"pending"`
	Failed    bool      `json:"failed,omitempty"`
}

// Clone returns a copy
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// ChatIdOf extracts the target chat id of a raw message event
func ChatIdOf(r gjson.Result) string {
	if id := IdOf(r.Get("chat_id")); id != "" {
		return id
	}
	return IdOf(r.Get("chat"))
}

// MessageFromJSON builds a confirmed message from a raw server message.
// selfId decides IsOwn; chatId fills ChatId when the payload omits it.
func MessageFromJSON(raw json.RawMessage, selfId, chatId string) *Message {
	return MessageFromResult(gjson.ParseBytes(raw), selfId, chatId)
}

// MessageFromResult is MessageFromJSON on an already parsed payload
func MessageFromResult(r gjson.Result, selfId, chatId string) *Message {
	if !r.IsObject() {
		return nil
	}

	m := &Message{
		Id:       IdOf(firstExisting(r, "_id", "id")),
		ClientId: firstString(r, "client_id"),
		ChatId:   ChatIdOf(r),
		Content:  r.Get("content").String(),
		Type:     firstString(r, "type"),
		FileUrl:  firstString(r, "fileUrl", "file_url"),
	}
	if m.ChatId == "" {
		m.ChatId = chatId
	}
	if m.Type == "" {
		m.Type = constant.MsgTypeText
	}

	// sender_id may be a string or a populated user object
	senderId := r.Get("sender_id")
	if senderId.IsObject() {
		m.SenderId = IdOf(senderId)
	} else {
		m.SenderId = scalarId(senderId)
	}
	if m.SenderId == "" {
		m.SenderId = IdOf(r.Get("sender"))
	}
	m.Sender = firstString(r, "sender.name", "sender_id.name")
	if m.Sender == "" {
		m.Sender = "Unknown"
	}
	m.IsOwn = selfId != "" && m.SenderId == selfId

	if t, ok := ParseTime(firstExisting(r, "created_at", "createdAt")); ok {
		m.CreatedAt = t
	}
	m.Timestamp = ClockTime(m.CreatedAt)
	return m
}

// MessagesFromJSON decodes a history page; entries without an id are dropped
func MessagesFromJSON(raws []json.RawMessage, selfId, chatId string) []*Message {
	out := make([]*Message, 0, len(raws))
	for _, raw := range raws {
		m := MessageFromJSON(raw, selfId, chatId)
		if m == nil || m.Id == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// NewPendingMessage synthesizes the optimistic message shown before the server echo
func NewPendingMessage(clientId, chatId, content, msgType, fileUrl string, self *User, now time.Time) *Message {
	if msgType == "" {
		msgType = constant.MsgTypeText
	}
	m := &Message{
		Id:        clientId,
		ClientId:  clientId,
		ChatId:    chatId,
		Content:   content,
		Type:      msgType,
		FileUrl:   fileUrl,
		Sender:    "You",
		IsOwn:     true,
		CreatedAt: now,
		Timestamp: ClockTime(now),
		Pending:   true,
	}
	if self != nil {
		m.SenderId = self.Id
		if self.Name != "" {
			m.Sender = self.Name
		}
	}
	return m
}

// SortByCreatedAt orders messages for rendering. The sort is stable so
// entries with equal times keep their transcript order.
func SortByCreatedAt(msgs []*Message) []*Message {
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/idgen"
	"github.com/tidwall/gjson"
)

// Stream states
const (
	StreamIdle    = "idle"
	StreamJoining = "joining"
	StreamJoined  = "joined"
)

// SendMessageRequest is the sendMessage event payload
type SendMessageRequest struct {
	ChatId   string  `json:"chat_id"`
	Content  string  `json:"content"`
	Type     string  `json:"type"`
	FileUrl  *string `json:"fileUrl"`
	ClientId string  `json:"client_id"`
}

// ChatRequest is the payload of typing, stopTyping and markAsRead
type ChatRequest struct {
	ChatId string `json:"chat_id"`
}

// MessageStream keeps the live transcript of one open conversation
type MessageStream struct {
	rt             Realtime
	session        CurrentUser
	ids            idgen.IDGenerator
	metrics        *metrics.Metrics
	now            func() time.Time
	pendingTimeout time.Duration

	mu       sync.Mutex
	chatId   string
	state    string
	messages []*entity.Message
	sentAt   map[string]time.Time // client id -> last emit
	subs     []*gateway.Subscription
}

// StreamOption configures a MessageStream
type StreamOption func(*MessageStream)

// WithIDGenerator sets the client id generator
func WithIDGenerator(ids idgen.IDGenerator) StreamOption {
	return func(s *MessageStream) {
		s.ids = ids
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Metrics) StreamOption {
	return func(s *MessageStream) {
		s.metrics = m
	}
}

// WithPendingTimeout marks pending messages failed after d; zero disables it
func WithPendingTimeout(d time.Duration) StreamOption {
	return func(s *MessageStream) {
		s.pendingTimeout = d
	}
}

// NewMessageStream creates an idle stream
func NewMessageStream(rt Realtime, session CurrentUser, opts ...StreamOption) *MessageStream {
	s := &MessageStream{
		rt:       rt,
		session:  session,
		ids:      idgen.NewTimeRandGenerator(),
		now:      time.Now,
		state:    StreamIdle,
		messages: []*entity.Message{},
		sentAt:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetChat switches the stream to chatId. Handlers of the previous chat are
// detached and the transcript reset before anything new is attached; an
// empty chatId leaves the stream idle.
func (s *MessageStream) SetChat(ctx context.Context, chatId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chatId == s.chatId && s.state != StreamIdle {
		return
	}

	s.detachLocked()
	s.messages = []*entity.Message{}
	s.sentAt = make(map[string]time.Time)
	s.chatId = chatId
	s.state = StreamIdle

	if chatId == "" || s.rt == nil {
		log.CtxDebug(ctx, "stream idle: chat_id=%q, transport=%v", chatId, s.rt != nil)
		return
	}

	s.subs = []*gateway.Subscription{
		s.rt.On(constant.EventReceiveMessage, s.handleMessage),
		// join again on every reconnect
		s.rt.On(constant.EventConnect, func(...json.RawMessage) { s.rejoin(chatId) }),
		s.rt.On(constant.EventDisconnect, func(...json.RawMessage) { s.left(chatId) }),
	}

	if s.rt.IsConnected() {
		s.joinLocked(chatId)
	} else {
		s.state = StreamJoining
		log.CtxDebug(ctx, "stream waiting for connect: chat_id=%s", chatId)
	}
}

// rejoin joins after a connect event. A connect that was still queued when
// SetChat joined directly belongs to the same connection and is skipped.
func (s *MessageStream) rejoin(chatId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StreamJoined {
		return
	}
	s.joinLocked(chatId)
}

// left marks the room as lost until the next connect
func (s *MessageStream) left(chatId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatId == chatId && s.state == StreamJoined {
		s.state = StreamJoining
	}
}

func (s *MessageStream) joinLocked(chatId string) {
	if s.chatId != chatId || chatId == "" {
		return
	}
	if err := s.rt.Emit(constant.EventJoinChat, chatId); err != nil {
		log.Warn("join chat failed: chat_id=%s, error=%v", chatId, err)
		s.state = StreamJoining
		return
	}
	log.Debug("joined chat: chat_id=%s", chatId)
	s.state = StreamJoined
}

// Seed merges a fetched history page into the transcript
func (s *MessageStream) Seed(history []*entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range history {
		if m == nil || m.Id == "" || (s.chatId != "" && m.ChatId != "" && m.ChatId != s.chatId) {
			continue
		}
		if s.indexOfId(m.Id) >= 0 {
			continue
		}
		s.messages = append(s.messages, m.Clone())
	}
}

// handleMessage reconciles one receiveMessage event with the transcript
func (s *MessageStream) handleMessage(args ...json.RawMessage) {
	r := gjson.ParseBytes(firstArg(args))

	s.mu.Lock()
	defer s.mu.Unlock()

	chatId := entity.ChatIdOf(r)
	if s.chatId == "" || chatId != s.chatId {
		log.Debug("message for another chat ignored: chat_id=%s, current=%s", chatId, s.chatId)
		return
	}

	msg := entity.MessageFromResult(r, selfIdOf(s.session), s.chatId)
	if msg == nil || msg.Id == "" {
		log.Warn("message without id ignored: chat_id=%s", chatId)
		return
	}

	for _, m := range s.messages {
		if m.Id == msg.Id && !m.Pending {
			s.metrics.ObserveMessage(metrics.MessageDuplicate)
			return
		}
	}

	if msg.ClientId != "" {
		for i, m := range s.messages {
			if m.Pending && m.ClientId == msg.ClientId {
				s.messages[i] = msg
				s.metrics.ObserveMessage(metrics.MessageReconciled)
				if at, ok := s.sentAt[m.ClientId]; ok {
					s.metrics.ObserveEcho(s.now().Sub(at))
					delete(s.sentAt, m.ClientId)
				}
				return
			}
		}
	}

	s.messages = append(s.messages, msg)
	s.metrics.ObserveMessage(metrics.MessageReceived)
}

// guardLocked returns why an emit for the current chat cannot happen
func (s *MessageStream) guardLocked() error {
	switch {
	case s.rt == nil:
		return gateway.ErrNotConnected.WithMsg("no transport")
	case s.chatId == "":
		return errcode.ErrNoChat
	case !s.rt.IsConnected():
		return gateway.ErrNotConnected
	}
	return nil
}

// Send appends an optimistic message and emits it. Nothing is appended when
// there is no transport, no chat or no connection.
func (s *MessageStream) Send(ctx context.Context, content, msgType, fileUrl string) (*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(); err != nil {
		log.CtxError(ctx, "cannot send message: chat_id=%s, error=%v", s.chatId, err)
		return nil, err
	}

	clientId, err := s.ids.NextID()
	if err != nil {
		log.CtxError(ctx, "generate client id failed: %v", err)
		return nil, err
	}

	var self *entity.User
	if s.session != nil {
		self = s.session.User()
	}
	now := s.now()
	pending := entity.NewPendingMessage(clientId, s.chatId, content, msgType, fileUrl, self, now)
	s.messages = append(s.messages, pending)
	s.sentAt[clientId] = now

	if err := s.emitLocked(pending); err != nil {
		pending.Failed = true
		log.CtxError(ctx, "send message failed: chat_id=%s, client_id=%s, error=%v", s.chatId, clientId, err)
		return pending.Clone(), err
	}
	s.metrics.ObserveMessage(metrics.MessageSent)
	log.CtxDebug(ctx, "message sent: chat_id=%s, client_id=%s", s.chatId, clientId)
	return pending.Clone(), nil
}

func (s *MessageStream) emitLocked(m *entity.Message) error {
	req := &SendMessageRequest{
		ChatId:   m.ChatId,
		Content:  m.Content,
		Type:     m.Type,
		ClientId: m.ClientId,
	}
	if m.FileUrl != "" {
		fileUrl := m.FileUrl
		req.FileUrl = &fileUrl
	}
	return s.rt.Emit(constant.EventSendMessage, req)
}

// ExpirePending marks pending messages older than the pending timeout as
// failed and returns how many were marked. A late echo still reconciles them.
func (s *MessageStream) ExpirePending(now time.Time) int {
	if s.pendingTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if !m.Pending || m.Failed {
			continue
		}
		at, ok := s.sentAt[m.ClientId]
		if !ok {
			at = m.CreatedAt
		}
		if now.Sub(at) >= s.pendingTimeout {
			m.Failed = true
			n++
			s.metrics.ObserveMessage(metrics.MessageFailed)
		}
	}
	if n > 0 {
		log.Warn("pending messages expired: chat_id=%s, count=%d", s.chatId, n)
	}
	return n
}

// WatchPending runs ExpirePending until ctx is done
func (s *MessageStream) WatchPending(ctx context.Context) {
	if s.pendingTimeout <= 0 {
		return
	}
	interval := s.pendingTimeout / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpirePending(s.now())
		}
	}
}

// Retry re-emits a failed message with its original client id
func (s *MessageStream) Retry(ctx context.Context, clientId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(); err != nil {
		return err
	}

	for _, m := range s.messages {
		if m.ClientId != clientId || !m.Pending {
			continue
		}
		if !m.Failed {
			return nil
		}
		if err := s.emitLocked(m); err != nil {
			log.CtxError(ctx, "retry message failed: client_id=%s, error=%v", clientId, err)
			return err
		}
		m.Failed = false
		s.sentAt[clientId] = s.now()
		log.CtxInfo(ctx, "message retried: chat_id=%s, client_id=%s", s.chatId, clientId)
		return nil
	}
	return errcode.ErrMessageNotFound
}

// StartTyping tells the room the user is typing
func (s *MessageStream) StartTyping(ctx context.Context) error {
	return s.emitChat(ctx, constant.EventTyping)
}

// StopTyping tells the room the user stopped typing
func (s *MessageStream) StopTyping(ctx context.Context) error {
	return s.emitChat(ctx, constant.EventStopTyping)
}

// MarkAsRead sends a read receipt for the current chat
func (s *MessageStream) MarkAsRead(ctx context.Context) error {
	return s.emitChat(ctx, constant.EventMarkAsRead)
}

func (s *MessageStream) emitChat(ctx context.Context, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(); err != nil {
		log.CtxDebug(ctx, "skip %s: %v", event, err)
		return err
	}
	return s.rt.Emit(event, &ChatRequest{ChatId: s.chatId})
}

// Messages returns a copy of the transcript in arrival order
func (s *MessageStream) Messages() []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Clone())
	}
	return out
}

// Sorted returns the transcript in render order
func (s *MessageStream) Sorted() []*entity.Message {
	return entity.SortByCreatedAt(s.Messages())
}

// ChatId returns the tracked chat id
func (s *MessageStream) ChatId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatId
}

// State returns idle, joining or joined
func (s *MessageStream) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Clear empties the transcript; the chat and its subscriptions stay
func (s *MessageStream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []*entity.Message{}
	s.sentAt = make(map[string]time.Time)
}

// Close detaches every handler and returns to idle
func (s *MessageStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
	s.chatId = ""
	s.state = StreamIdle
	s.messages = []*entity.Message{}
	s.sentAt = make(map[string]time.Time)
}

func (s *MessageStream) detachLocked() {
	if s.rt != nil && len(s.subs) > 0 {
		s.rt.Off(s.subs...)
	}
	s.subs = nil
}

func (s *MessageStream) indexOfId(id string) int {
	for i, m := range s.messages {
		if m.Id == id {
			return i
		}
	}
	return -1
}

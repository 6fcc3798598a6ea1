package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/tidwall/gjson"
)

// StatusSyncer triggers a presence bulk sync
type StatusSyncer interface {
	RequestStatusSync() error
}

// ActiveConversation is the selected conversation with its fetched history
type ActiveConversation struct {
	Conversation *entity.Conversation
	Messages     []*entity.Message
}

func (a *ActiveConversation) clone() *ActiveConversation {
	if a == nil {
		return nil
	}
	out := &ActiveConversation{
		Conversation: a.Conversation.Clone(),
		Messages:     make([]*entity.Message, 0, len(a.Messages)),
	}
	for _, m := range a.Messages {
		out.Messages = append(out.Messages, m.Clone())
	}
	return out
}

// ConversationService holds the conversation collection and the selection
type ConversationService struct {
	api      ChatAPI
	session  CurrentUser
	presence StatusSyncer
	rt       Realtime
	now      func() time.Time

	mu       sync.RWMutex
	convs    []*entity.Conversation
	selected *entity.Conversation
	active   *ActiveConversation
	sub      *gateway.Subscription
}

// NewConversationService creates a new ConversationService and subscribes
// it to live message events
func NewConversationService(api ChatAPI, session CurrentUser, presence StatusSyncer, rt Realtime) *ConversationService {
	s := &ConversationService{
		api:      api,
		session:  session,
		presence: presence,
		rt:       rt,
		now:      time.Now,
		convs:    []*entity.Conversation{},
	}
	if rt != nil {
		s.sub = rt.On(constant.EventReceiveMessage, s.handleMessage)
	}
	return s
}

// FetchAll replaces the collection with the server list. On error the
// previous collection is kept.
func (s *ConversationService) FetchAll(ctx context.Context) error {
	raws, err := s.api.ListChats(ctx)
	if err != nil {
		log.CtxError(ctx, "fetch conversations failed: %v", err)
		return err
	}

	var user *entity.User
	if s.session != nil {
		user = s.session.User()
	}
	convs := entity.NormalizeConversations(user, raws)

	s.mu.Lock()
	s.convs = convs
	s.mu.Unlock()
	log.CtxDebug(ctx, "conversations loaded: count=%d", len(convs))

	if s.rt != nil && s.rt.IsConnected() && s.presence != nil {
		_ = s.presence.RequestStatusSync()
	}
	return nil
}

// Select makes conv the selected conversation and loads its history. conv
// may be partial or stale; it is re-normalized first.
func (s *ConversationService) Select(ctx context.Context, conv *entity.Conversation) error {
	if conv == nil || conv.Id == "" {
		log.CtxError(ctx, "select conversation without id")
		return errcode.ErrInvalidConversation
	}

	n := entity.Renormalize(conv, selfIdOf(s.session))

	s.mu.Lock()
	if s.active != nil && s.selected != nil && s.selected.Id == n.Id {
		s.mu.Unlock()
		return nil
	}
	if s.indexOf(n.Id) < 0 {
		s.convs = append([]*entity.Conversation{n.Clone()}, s.convs...)
	}
	s.selected = n
	s.active = nil
	s.mu.Unlock()

	messages := []*entity.Message{}
	raws, err := s.api.ListMessages(ctx, n.Id)
	if err != nil {
		log.CtxError(ctx, "fetch messages failed: chat_id=%s, error=%v", n.Id, err)
	} else {
		messages = entity.MessagesFromJSON(raws, selfIdOf(s.session), n.Id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a newer selection wins
	if s.selected == nil || s.selected.Id != n.Id {
		return nil
	}
	s.active = &ActiveConversation{Conversation: s.selected.Clone(), Messages: messages}
	return nil
}

// Deselect clears the selected and the active conversation
func (s *ConversationService) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.active = nil
}

// Mute sets the mute state: 8h, 1w, always, or anything else to unmute
func (s *ConversationService) Mute(id, duration string) error {
	now := s.now()
	return s.update(id, func(c *entity.Conversation) { c.ApplyMute(duration, now) })
}

// Pin pins a conversation
func (s *ConversationService) Pin(id string) error {
	return s.update(id, func(c *entity.Conversation) { c.IsPinned = true })
}

// Unpin unpins a conversation
func (s *ConversationService) Unpin(id string) error {
	return s.update(id, func(c *entity.Conversation) { c.IsPinned = false })
}

// Archive archives a conversation
func (s *ConversationService) Archive(id string) error {
	return s.update(id, func(c *entity.Conversation) { c.IsArchived = true })
}

// Unarchive restores an archived conversation
func (s *ConversationService) Unarchive(id string) error {
	return s.update(id, func(c *entity.Conversation) { c.IsArchived = false })
}

// MarkRead clears the unread flag
func (s *ConversationService) MarkRead(id string) error {
	return s.update(id, func(c *entity.Conversation) { c.IsUnread = false })
}

// MarkUnread sets the unread flag
func (s *ConversationService) MarkUnread(id string) error {
	return s.update(id, func(c *entity.Conversation) { c.IsUnread = true })
}

// Delete removes a conversation, deselecting it if selected
func (s *ConversationService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return errcode.ErrConvNotFound
	}
	s.convs = append(s.convs[:i:i], s.convs[i+1:]...)
	if s.selected != nil && s.selected.Id == id {
		s.selected = nil
		s.active = nil
	}
	return nil
}

// Clear empties the transcript of the active conversation; the chat stays
func (s *ConversationService) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return errcode.ErrConvNotFound
	}
	if s.active != nil && s.active.Conversation.Id == id {
		s.active.Messages = []*entity.Message{}
	}
	return nil
}

// Prepend puts conv at the front, replacing an entry with the same id
func (s *ConversationService) Prepend(conv *entity.Conversation) error {
	if conv == nil || conv.Id == "" {
		return errcode.ErrInvalidConversation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Conversation, 0, len(s.convs)+1)
	out = append(out, conv.Clone())
	for _, c := range s.convs {
		if c.Id != conv.Id {
			out = append(out, c)
		}
	}
	s.convs = out
	return nil
}

// OpenPrivateChat creates or fetches the 1:1 chat with userId and selects it
func (s *ConversationService) OpenPrivateChat(ctx context.Context, userId string) (*entity.Conversation, error) {
	raw, err := s.api.CreatePrivateChat(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "create private chat failed: user_id=%s, error=%v", userId, err)
		return nil, err
	}
	conv := entity.NormalizeConversation(raw, selfIdOf(s.session))
	if conv == nil || conv.Id == "" {
		return nil, errcode.ErrInvalidConversation
	}
	if err := s.Prepend(conv); err != nil {
		return nil, err
	}
	if err := s.Select(ctx, conv); err != nil {
		return nil, err
	}
	return conv.Clone(), nil
}

// handleMessage updates the preview of the target conversation
func (s *ConversationService) handleMessage(args ...json.RawMessage) {
	r := gjson.ParseBytes(firstArg(args))
	chatId := entity.ChatIdOf(r)
	if chatId == "" {
		return
	}
	msg := entity.MessageFromResult(r, selfIdOf(s.session), chatId)
	if msg == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(chatId)
	if i < 0 {
		log.Debug("message for unknown conversation ignored: chat_id=%s", chatId)
		return
	}

	at := msg.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	c := s.convs[i]
	c.LastMessage = msg.Content
	c.Time = at.UTC().Format(time.RFC3339Nano)
	c.LastMessageTimestamp = at.UnixMilli()
	open := s.selected != nil && s.selected.Id == chatId
	if !msg.IsOwn && !open {
		c.IsUnread = true
	}
	if open {
		s.selected.LastMessage = c.LastMessage
		s.selected.Time = c.Time
		s.selected.LastMessageTimestamp = c.LastMessageTimestamp
	}
}

// update applies fn to the conversation with id and to the selection
func (s *ConversationService) update(id string, fn func(c *entity.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return errcode.ErrConvNotFound
	}
	fn(s.convs[i])
	if s.selected != nil && s.selected.Id == id {
		fn(s.selected)
	}
	if s.active != nil && s.active.Conversation.Id == id {
		fn(s.active.Conversation)
	}
	return nil
}

func (s *ConversationService) indexOf(id string) int {
	for i, c := range s.convs {
		if c.Id == id {
			return i
		}
	}
	return -1
}

// List returns copies of the conversations in collection order
func (s *ConversationService) List() []*entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c.Clone())
	}
	return out
}

// Get returns a copy of one conversation
func (s *ConversationService) Get(id string) (*entity.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return s.convs[i].Clone(), true
}

// Sorted returns the conversations in display order
func (s *ConversationService) Sorted(f entity.ConversationFilter) []*entity.Conversation {
	return entity.SortForDisplay(s.List(), f)
}

// UnreadCount counts unread, non-archived conversations
func (s *ConversationService) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.convs {
		if c.IsUnread && !c.IsArchived {
			n++
		}
	}
	return n
}

// Selected returns a copy of the selected conversation, or nil
func (s *ConversationService) Selected() *entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected.Clone()
}

// Active returns a copy of the active conversation, or nil
func (s *ConversationService) Active() *ActiveConversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.clone()
}

// Close detaches the live update handler
func (s *ConversationService) Close() {
	if s.rt != nil && s.sub != nil {
		s.rt.Off(s.sub)
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/tidwall/gjson"
)

// TypingUser is a remote user currently typing
type TypingUser struct {
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// TypingTracker lists the remote users typing in one chat
type TypingTracker struct {
	rt Realtime

	mu     sync.Mutex
	chatId string
	users  []TypingUser
	subs   []*gateway.Subscription
}

// NewTypingTracker creates an idle tracker
func NewTypingTracker(rt Realtime) *TypingTracker {
	return &TypingTracker{rt: rt}
}

// SetChat starts tracking chatId, dropping what was known about the previous one
func (t *TypingTracker) SetChat(chatId string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rt != nil && len(t.subs) > 0 {
		t.rt.Off(t.subs...)
	}
	t.subs = nil
	t.users = nil
	t.chatId = chatId

	if chatId == "" || t.rt == nil {
		return
	}
	t.subs = []*gateway.Subscription{
		t.rt.On(constant.EventUserTyping, t.handleTyping),
		t.rt.On(constant.EventUserStoppedTyping, t.handleStopped),
	}
}

func (t *TypingTracker) handleTyping(args ...json.RawMessage) {
	r := gjson.ParseBytes(firstArg(args))
	userId := entity.IdOf(r.Get("user_id"))

	t.mu.Lock()
	defer t.mu.Unlock()

	if userId == "" || entity.IdOf(r.Get("chat_id")) != t.chatId {
		return
	}
	for _, u := range t.users {
		if u.UserId == userId {
			return
		}
	}
	t.users = append(t.users, TypingUser{UserId: userId, UserName: r.Get("user_name").String()})
}

func (t *TypingTracker) handleStopped(args ...json.RawMessage) {
	r := gjson.ParseBytes(firstArg(args))
	userId := entity.IdOf(r.Get("user_id"))

	t.mu.Lock()
	defer t.mu.Unlock()

	if entity.IdOf(r.Get("chat_id")) != t.chatId {
		return
	}
	kept := t.users[:0]
	for _, u := range t.users {
		if u.UserId != userId {
			kept = append(kept, u)
		}
	}
	t.users = kept
}

// Users returns the typing users in arrival order
func (t *TypingTracker) Users() []TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TypingUser, len(t.users))
	copy(out, t.users)
	return out
}

// IsTyping reports whether anyone is typing
func (t *TypingTracker) IsTyping() bool {
	return len(t.Users()) > 0
}

// Text summarizes who is typing, or returns "" when nobody is
func (t *TypingTracker) Text() string {
	users := t.Users()
	switch len(users) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", users[0].UserName)
	case 2:
		return fmt.Sprintf("%s and %s are typing...", users[0].UserName, users[1].UserName)
	default:
		return fmt.Sprintf("%d people are typing...", len(users))
	}
}

// Close detaches the handlers
func (t *TypingTracker) Close() {
	t.SetChat("")
}

// TypingEmitter sends typing state for the open chat
type TypingEmitter interface {
	StartTyping(ctx context.Context) error
	StopTyping(ctx context.Context) error
}

// TypingDebouncer emits typing on every keystroke and stopTyping once input
// has been idle for the timeout
type TypingDebouncer struct {
	target  TypingEmitter
	timeout time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewTypingDebouncer creates a debouncer; a non-positive timeout uses the default
func NewTypingDebouncer(target TypingEmitter, timeout time.Duration) *TypingDebouncer {
	if timeout <= 0 {
		timeout = constant.TypingIdleTimeout
	}
	return &TypingDebouncer{target: target, timeout: timeout}
}

// Keystroke signals input activity
func (d *TypingDebouncer) Keystroke(ctx context.Context) {
	if err := d.target.StartTyping(ctx); err != nil {
		log.CtxDebug(ctx, "start typing skipped: %v", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		_ = d.target.StopTyping(context.Background())
	})
}

// Sent stops the timer and emits stopTyping right away
func (d *TypingDebouncer) Sent(ctx context.Context) {
	d.stop()
	_ = d.target.StopTyping(ctx)
}

// Close stops the timer without emitting
func (d *TypingDebouncer) Close() {
	d.stop()
}

func (d *TypingDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

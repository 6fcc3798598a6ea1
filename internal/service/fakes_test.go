package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/sdk"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	Event string
	Args  []interface{}
}

// fakeRealtime dispatches fired events synchronously to registered handlers
type fakeRealtime struct {
	handlers *gateway.HandlerMap

	mu        sync.Mutex
	connected bool
	emitted   []emitted
	emitErr   error
}

func newFakeRealtime(connected bool) *fakeRealtime {
	return &fakeRealtime{handlers: gateway.NewHandlerMap(), connected: connected}
}

func (f *fakeRealtime) On(event string, h gateway.Handler) *gateway.Subscription {
	return f.handlers.Register(event, h, false)
}

func (f *fakeRealtime) Once(event string, h gateway.Handler) *gateway.Subscription {
	return f.handlers.Register(event, h, true)
}

func (f *fakeRealtime) Off(subs ...*gateway.Subscription) {
	for _, sub := range subs {
		f.handlers.Unregister(sub)
	}
}

func (f *fakeRealtime) Emit(event string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return gateway.ErrNotConnected
	}
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emitted{Event: event, Args: args})
	return nil
}

func (f *fakeRealtime) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) setConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

func (f *fakeRealtime) failEmits(err error) {
	f.mu.Lock()
	f.emitErr = err
	f.mu.Unlock()
}

// connect flips the state and fires the connect event like a (re)connect
func (f *fakeRealtime) connect() {
	f.setConnected(true)
	f.handlers.Dispatch("connect")
}

// drop flips the state and fires the disconnect event like a lost connection
func (f *fakeRealtime) drop() {
	f.setConnected(false)
	f.handlers.Dispatch("disconnect", json.RawMessage(`"transport close"`))
}

func (f *fakeRealtime) fire(event string, payloads ...string) {
	args := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		args = append(args, json.RawMessage(p))
	}
	f.handlers.Dispatch(event, args...)
}

func (f *fakeRealtime) sent() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, len(f.emitted))
	copy(out, f.emitted)
	return out
}

func (f *fakeRealtime) sentEvents(event string) []emitted {
	var out []emitted
	for _, e := range f.sent() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeRealtime) reset() {
	f.mu.Lock()
	f.emitted = nil
	f.mu.Unlock()
}

// staticUser is a fixed CurrentUser
type staticUser struct {
	user *entity.User
}

func (s staticUser) User() *entity.User {
	return s.user
}

var me = &entity.User{Id: "u_me", Name: "Me"}

// fakeAPI implements AuthAPI, ChatAPI and UserAPI in memory
type fakeAPI struct {
	mu sync.Mutex

	loginToken string
	loginErr   error
	verifyUser *entity.User
	verifyErr  error
	verifies   int

	chats     []json.RawMessage
	chatsErr  error
	history   map[string][]json.RawMessage
	historyFn func(chatId string)
	created   json.RawMessage

	users     []*entity.User
	searchErr error
	searches  int
}

func (f *fakeAPI) Login(_ context.Context, req *sdk.LoginRequest) (*sdk.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &sdk.LoginResponse{Token: f.loginToken}, nil
}

func (f *fakeAPI) Register(_ context.Context, req *sdk.RegisterRequest) (*sdk.MessageResponse, error) {
	return &sdk.MessageResponse{Message: "registered " + req.Email}, nil
}

func (f *fakeAPI) Verify(_ context.Context) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyUser, nil
}

func (f *fakeAPI) ForgotPassword(_ context.Context, email string) (*sdk.MessageResponse, error) {
	return &sdk.MessageResponse{Message: "sent"}, nil
}

func (f *fakeAPI) ResetPassword(_ context.Context, token, password string) (*sdk.MessageResponse, error) {
	return &sdk.MessageResponse{Message: "reset"}, nil
}

func (f *fakeAPI) ValidateResetToken(_ context.Context, token string) (*sdk.MessageResponse, error) {
	return &sdk.MessageResponse{Message: "valid"}, nil
}

func (f *fakeAPI) ListChats(_ context.Context) ([]json.RawMessage, error) {
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	return f.chats, nil
}

func (f *fakeAPI) CreatePrivateChat(_ context.Context, userId string) (json.RawMessage, error) {
	if f.created == nil {
		return nil, errcode.ErrRequestFailed
	}
	return f.created, nil
}

func (f *fakeAPI) ListMessages(_ context.Context, chatId string) ([]json.RawMessage, error) {
	if f.historyFn != nil {
		f.historyFn(chatId)
	}
	raws, ok := f.history[chatId]
	if !ok {
		return nil, errcode.ErrRequestFailed
	}
	return raws, nil
}

func (f *fakeAPI) SearchUsers(_ context.Context, term string) ([]*entity.User, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.users, nil
}

func (f *fakeAPI) GetUser(_ context.Context, userId string) (*entity.User, error) {
	for _, u := range f.users {
		if u.Id == userId {
			return u, nil
		}
	}
	return nil, errcode.ErrRequestFailed.WithStatus(404)
}

func raws(t *testing.T, docs ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		require.True(t, json.Valid([]byte(d)), d)
		out = append(out, json.RawMessage(d))
	}
	return out
}

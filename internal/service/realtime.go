package service

import (
	"context"
	"encoding/json"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/sdk"
)

// Realtime is the socket surface the services use. *gateway.Transport
// implements it; a nil Realtime means there is no transport at all.
type Realtime interface {
	On(event string, h gateway.Handler) *gateway.Subscription
	Once(event string, h gateway.Handler) *gateway.Subscription
	Off(subs ...*gateway.Subscription)
	Emit(event string, args ...interface{}) error
	IsConnected() bool
}

// AuthAPI is the part of the HTTP API the session controller calls
type AuthAPI interface {
	Login(ctx context.Context, req *sdk.LoginRequest) (*sdk.LoginResponse, error)
	Register(ctx context.Context, req *sdk.RegisterRequest) (*sdk.MessageResponse, error)
	Verify(ctx context.Context) (*entity.User, error)
	ForgotPassword(ctx context.Context, email string) (*sdk.MessageResponse, error)
	ResetPassword(ctx context.Context, token, password string) (*sdk.MessageResponse, error)
	ValidateResetToken(ctx context.Context, token string) (*sdk.MessageResponse, error)
}

// ChatAPI is the part of the HTTP API the conversation directory calls
type ChatAPI interface {
	ListChats(ctx context.Context) ([]json.RawMessage, error)
	CreatePrivateChat(ctx context.Context, userId string) (json.RawMessage, error)
	ListMessages(ctx context.Context, chatId string) ([]json.RawMessage, error)
}

// UserAPI is the part of the HTTP API used for user lookups
type UserAPI interface {
	SearchUsers(ctx context.Context, term string) ([]*entity.User, error)
	GetUser(ctx context.Context, userId string) (*entity.User, error)
}

// CurrentUser returns the authenticated user, or nil
type CurrentUser interface {
	User() *entity.User
}

func selfIdOf(cu CurrentUser) string {
	if cu == nil {
		return ""
	}
	if u := cu.User(); u != nil {
		return u.Id
	}
	return ""
}

// firstArg returns the first event argument, or nil
func firstArg(args []json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/mbeoliero/nexo-chat/sdk"
)

// Session states
const (
	SessionUnauthenticated = "unauthenticated"
	SessionVerifying       = "verifying"
	SessionAuthenticated   = "authenticated"
)

// SessionService owns the authenticated user
type SessionService struct {
	api      AuthAPI
	tokens   jwt.TokenStore
	strategy string
	now      func() time.Time

	mu        sync.RWMutex
	state     string
	user      *entity.User
	observers []func(*entity.User)
}

// NewSessionService creates a new SessionService
func NewSessionService(api AuthAPI, tokens jwt.TokenStore, strategy string) *SessionService {
	if tokens == nil {
		tokens = jwt.NewMemoryTokenStore()
	}
	if strategy == constant.AuthStrategyCookie {
		// only a cookie jar store may stand in for the server-owned credential
		if _, ok := tokens.(http.CookieJar); !ok {
			tokens = jwt.CookieTokenStore{}
		}
	}
	return &SessionService{
		api:      api,
		tokens:   tokens,
		strategy: strategy,
		now:      time.Now,
		state:    SessionUnauthenticated,
	}
}

// OnChange registers an observer called whenever the identity changes,
// with the new user or nil on logout
func (s *SessionService) OnChange(fn func(*entity.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current session state
func (s *SessionService) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns a copy of the authenticated user, or nil
func (s *SessionService) User() *entity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the stored bearer token; always empty under the cookie strategy
func (s *SessionService) Token(ctx context.Context) string {
	token, err := s.tokens.Get(ctx)
	if err != nil {
		log.CtxWarn(ctx, "read token failed: %v", err)
		return ""
	}
	return token
}

// Init restores the session on startup. Without a stored token (and outside
// the cookie strategy) no request is made.
func (s *SessionService) Init(ctx context.Context) *entity.User {
	if s.strategy != constant.AuthStrategyCookie {
		token := s.Token(ctx)
		if token == "" {
			s.setUser(nil)
			return nil
		}
		if jwt.IsExpired(token, s.now()) {
			log.CtxInfo(ctx, "stored token expired, skipping verify")
			s.clearToken(ctx)
			s.setUser(nil)
			return nil
		}
	}
	return s.verify(ctx)
}

// verify fetches the canonical user; any failure is a silent logout
func (s *SessionService) verify(ctx context.Context) *entity.User {
	s.mu.Lock()
	s.state = SessionVerifying
	s.mu.Unlock()

	user, err := s.api.Verify(ctx)
	if err != nil || user == nil || user.Id == "" {
		log.CtxWarn(ctx, "session verify failed: %v", err)
		s.clearToken(ctx)
		s.setUser(nil)
		return nil
	}

	s.setUser(user)
	log.CtxInfo(ctx, "session verified: user_id=%s", user.Id)
	return s.User()
}

// Login authenticates, stores the issued token and re-verifies. The user
// embedded in the login response is never used.
func (s *SessionService) Login(ctx context.Context, email, password string) (*entity.User, error) {
	if err := sdk.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := sdk.ValidatePassword(password); err != nil {
		return nil, err
	}

	resp, err := s.api.Login(ctx, &sdk.LoginRequest{Email: email, Password: password})
	if err != nil {
		log.CtxInfo(ctx, "login failed: email=%s, error=%v", email, err)
		return nil, err
	}

	if s.strategy != constant.AuthStrategyCookie {
		if resp.Token == "" {
			log.CtxWarn(ctx, "login response has no token: email=%s", email)
			return nil, errcode.ErrUnauthorized.WithMsg("login response has no token")
		}
		if err := s.tokens.Set(ctx, resp.Token); err != nil {
			log.CtxError(ctx, "store token failed: %v", err)
			return nil, err
		}
	}

	user := s.verify(ctx)
	if user == nil {
		return nil, errcode.ErrUnauthorized
	}
	return user, nil
}

// Logout clears the stored token and the user. Observers react to the
// identity change; the transport is not touched here.
func (s *SessionService) Logout(ctx context.Context) {
	s.clearToken(ctx)
	s.setUser(nil)
	log.CtxInfo(ctx, "logged out")
}

// Register forwards the registration and returns the response verbatim
func (s *SessionService) Register(ctx context.Context, req *sdk.RegisterRequest) (*sdk.MessageResponse, error) {
	if req == nil {
		return nil, errcode.ErrInvalidParam
	}
	if err := sdk.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := sdk.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := sdk.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	return s.api.Register(ctx, req)
}

// ForgotPassword requests a password reset mail
func (s *SessionService) ForgotPassword(ctx context.Context, email string) (*sdk.MessageResponse, error) {
	if err := sdk.ValidateEmail(email); err != nil {
		return nil, err
	}
	return s.api.ForgotPassword(ctx, email)
}

// ResetPassword sets a new password with a reset token
func (s *SessionService) ResetPassword(ctx context.Context, token, password string) (*sdk.MessageResponse, error) {
	if token == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("reset token is required")
	}
	if err := sdk.ValidatePassword(password); err != nil {
		return nil, err
	}
	return s.api.ResetPassword(ctx, token, password)
}

// ValidateResetToken checks a reset token
func (s *SessionService) ValidateResetToken(ctx context.Context, token string) (*sdk.MessageResponse, error) {
	if token == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("reset token is required")
	}
	return s.api.ValidateResetToken(ctx, token)
}

func (s *SessionService) clearToken(ctx context.Context) {
	if err := s.tokens.Remove(ctx); err != nil {
		log.CtxWarn(ctx, "remove token failed: %v", err)
	}
}

// setUser updates the state and notifies observers when the identity changed
func (s *SessionService) setUser(user *entity.User) {
	s.mu.Lock()
	prev := s.user
	if user == nil {
		s.user = nil
		s.state = SessionUnauthenticated
	} else {
		u := *user
		s.user = &u
		s.state = SessionAuthenticated
	}
	changed := (prev == nil) != (user == nil) || (prev != nil && user != nil && prev.Id != user.Id)
	observers := make([]func(*entity.User), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range observers {
		fn(s.User())
	}
}

package service

import (
	"context"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/mbeoliero/nexo-chat/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := gojwt.RegisteredClaims{
		Subject:   "u_me",
		ExpiresAt: gojwt.NewNumericDate(exp),
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return token
}

func TestSessionService_InitWithoutToken(t *testing.T) {
	api := &fakeAPI{verifyUser: me}
	s := NewSessionService(api, jwt.NewMemoryTokenStore(), constant.AuthStrategyToken)

	user := s.Init(context.Background())
	assert.Nil(t, user)
	assert.Equal(t, 0, api.verifies, "no request without a stored token")
	assert.Equal(t, SessionUnauthenticated, s.State())
}

func TestSessionService_InitExpiredToken(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{verifyUser: me}
	tokens := jwt.NewMemoryTokenStore()
	require.NoError(t, tokens.Set(ctx, tokenExpiringAt(t, time.Now().Add(-time.Minute))))

	s := NewSessionService(api, tokens, constant.AuthStrategyToken)
	assert.Nil(t, s.Init(ctx))
	assert.Equal(t, 0, api.verifies)

	stored, _ := tokens.Get(ctx)
	assert.Empty(t, stored, "expired token is removed")
}

func TestSessionService_InitVerifies(t *testing.T) {
	ctx := context.Background()
	tokens := jwt.NewMemoryTokenStore()
	require.NoError(t, tokens.Set(ctx, tokenExpiringAt(t, time.Now().Add(time.Hour))))

	t.Run("valid token", func(t *testing.T) {
		api := &fakeAPI{verifyUser: me}
		s := NewSessionService(api, tokens, constant.AuthStrategyToken)
		user := s.Init(ctx)
		require.NotNil(t, user)
		assert.Equal(t, "u_me", user.Id)
		assert.Equal(t, SessionAuthenticated, s.State())
	})

	t.Run("opaque token is verified by the server", func(t *testing.T) {
		opaque := jwt.NewMemoryTokenStore()
		require.NoError(t, opaque.Set(ctx, "opaque-session-token"))
		api := &fakeAPI{verifyUser: me}
		s := NewSessionService(api, opaque, constant.AuthStrategyToken)
		assert.NotNil(t, s.Init(ctx))
		assert.Equal(t, 1, api.verifies)
	})

	t.Run("verify failure logs out silently", func(t *testing.T) {
		api := &fakeAPI{verifyErr: errcode.ErrUnauthorized}
		s := NewSessionService(api, tokens, constant.AuthStrategyToken)
		assert.Nil(t, s.Init(ctx))
		assert.Equal(t, SessionUnauthenticated, s.State())
		stored, _ := tokens.Get(ctx)
		assert.Empty(t, stored)
	})
}

func TestSessionService_InitCookieStrategy(t *testing.T) {
	api := &fakeAPI{verifyUser: me}
	s := NewSessionService(api, jwt.NewMemoryTokenStore(), constant.AuthStrategyCookie)

	user := s.Init(context.Background())
	require.NotNil(t, user)
	assert.Equal(t, 1, api.verifies, "cookie sessions are always verified")
	assert.Empty(t, s.Token(context.Background()))
}

func TestSessionService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the token and uses the verified user", func(t *testing.T) {
		api := &fakeAPI{loginToken: "issued", verifyUser: &entity.User{Id: "u_me", Name: "Verified"}}
		tokens := jwt.NewMemoryTokenStore()
		s := NewSessionService(api, tokens, constant.AuthStrategyToken)

		user, err := s.Login(ctx, "me@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "Verified", user.Name)
		assert.Equal(t, 1, api.verifies)
		assert.Equal(t, "issued", s.Token(ctx))
	})

	t.Run("validation happens before any request", func(t *testing.T) {
		api := &fakeAPI{loginToken: "issued", verifyUser: me}
		s := NewSessionService(api, jwt.NewMemoryTokenStore(), constant.AuthStrategyToken)

		_, err := s.Login(ctx, "not-an-email", "secret1")
		assert.ErrorIs(t, err, errcode.ErrInvalidEmail)
		_, err = s.Login(ctx, "me@example.com", "12345")
		assert.ErrorIs(t, err, errcode.ErrPasswordTooShort)
		assert.Equal(t, 0, api.verifies)
	})

	t.Run("missing token", func(t *testing.T) {
		api := &fakeAPI{verifyUser: me}
		s := NewSessionService(api, jwt.NewMemoryTokenStore(), constant.AuthStrategyToken)
		_, err := s.Login(ctx, "me@example.com", "secret1")
		assert.ErrorIs(t, err, errcode.ErrUnauthorized)
		assert.Nil(t, s.User())
	})

	t.Run("server rejection", func(t *testing.T) {
		api := &fakeAPI{loginErr: errcode.ErrUnauthorized.WithMsg("Invalid credentials")}
		s := NewSessionService(api, jwt.NewMemoryTokenStore(), constant.AuthStrategyToken)
		_, err := s.Login(ctx, "me@example.com", "secret1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid credentials")
	})

	t.Run("verify after login fails", func(t *testing.T) {
		api := &fakeAPI{loginToken: "issued", verifyErr: errcode.ErrRequestFailed}
		tokens := jwt.NewMemoryTokenStore()
		s := NewSessionService(api, tokens, constant.AuthStrategyToken)
		_, err := s.Login(ctx, "me@example.com", "secret1")
		assert.ErrorIs(t, err, errcode.ErrUnauthorized)
		assert.Empty(t, s.Token(ctx))
	})

	t.Run("cookie strategy needs no token", func(t *testing.T) {
		api := &fakeAPI{verifyUser: me}
		s := NewSessionService(api, nil, constant.AuthStrategyCookie)
		user, err := s.Login(ctx, "me@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "u_me", user.Id)
	})
}

func TestSessionService_Observers(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{loginToken: "issued", verifyUser: me}
	s := NewSessionService(api, jwt.NewMemoryTokenStore(), constant.AuthStrategyToken)

	var seen []*entity.User
	s.OnChange(func(u *entity.User) { seen = append(seen, u) })

	_, err := s.Login(ctx, "me@example.com", "secret1")
	require.NoError(t, err)
	// same identity again: no notification
	_, err = s.Login(ctx, "me@example.com", "secret1")
	require.NoError(t, err)
	s.Logout(ctx)
	s.Logout(ctx)

	require.Len(t, seen, 2)
	assert.Equal(t, "u_me", seen[0].Id)
	assert.Nil(t, seen[1])
	assert.Empty(t, s.Token(ctx))
}

func TestSessionService_AccountFlows(t *testing.T) {
	ctx := context.Background()
	s := NewSessionService(&fakeAPI{}, nil, constant.AuthStrategyToken)

	_, err := s.Register(ctx, &sdk.RegisterRequest{Name: "A", Email: "a@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, errcode.ErrNameTooShort)

	resp, err := s.Register(ctx, &sdk.RegisterRequest{Name: "Ann", Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "registered a@example.com", resp.Message)

	_, err = s.ForgotPassword(ctx, "nope")
	assert.ErrorIs(t, err, errcode.ErrInvalidEmail)

	_, err = s.ResetPassword(ctx, "", "secret1")
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
	resp, err = s.ResetPassword(ctx, "tok", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "reset", resp.Message)

	resp, err = s.ValidateResetToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "valid", resp.Message)
}

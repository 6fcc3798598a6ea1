package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/idgen"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/mbeoliero/nexo-chat/sdk"
	"github.com/redis/go-redis/v9"
)

// App holds every client component built from one Config
type App struct {
	Config    *config.Config
	API       *sdk.Client
	Transport *gateway.Transport
	Metrics   *metrics.Metrics

	Session       *SessionService
	Presence      *PresenceService
	Conversations *ConversationService
	Stream        *MessageStream
	Typing        *TypingTracker
	Users         *UserService

	rdb  *redis.Client
	subs []*gateway.Subscription
}

// NewApp wires the components. A login connects the transport and loads
// the conversation list; a logout disconnects it.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	problems, warnings := cfg.Validate()
	for _, w := range warnings {
		log.CtxWarn(ctx, "config warning: %s", w)
	}
	for _, p := range problems {
		log.CtxError(ctx, "config problem: %s", p)
	}

	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
	}

	sessionId := cfg.Token.SessionId
	if sessionId == "" {
		sessionId = config.DefaultSessionId()
	}
	storeOpts := jwt.StoreOptions{
		Dir:        cfg.Token.Dir,
		SessionId:  sessionId,
		SessionTTL: cfg.Token.SessionTTL,
		KeyPrefix:  cfg.Token.Redis.KeyPrefix,
	}
	if cfg.Auth.Storage == constant.StorageSession && cfg.Token.Redis.Enabled() {
		a.rdb = initRedis(cfg)
		storeOpts.Redis = a.rdb
	}
	tokens, err := jwt.NewTokenStore(cfg.Auth.Strategy, cfg.Auth.Storage, storeOpts)
	if err != nil {
		a.Close()
		return nil, err
	}

	// the cookie strategy store is itself the persistent jar
	jar, ok := tokens.(http.CookieJar)
	if !ok {
		if jar, err = cookiejar.New(nil); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
	}

	a.API, err = sdk.NewClient(cfg.API.BaseURL,
		sdk.WithTokenStore(tokens),
		sdk.WithAuthStrategy(cfg.Auth.Strategy),
		sdk.WithCookieJar(jar),
		sdk.WithTimeout(cfg.API.Timeout),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Transport = gateway.NewTransport(gateway.Options{
		URL:               cfg.Socket.URL,
		Path:              cfg.Socket.Path,
		Transports:        cfg.Socket.Transports,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		DialTimeout:       cfg.Socket.DialTimeout,
		AuthStrategy:      cfg.Auth.Strategy,
		Jar:               jar,
	})

	ids, err := idgen.New(cfg.Client.IdGenerator)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Session = NewSessionService(a.API, tokens, cfg.Auth.Strategy)
	a.Presence = NewPresenceService(a.Transport)
	a.Conversations = NewConversationService(a.API, a.Session, a.Presence, a.Transport)
	a.Stream = NewMessageStream(a.Transport, a.Session,
		WithIDGenerator(ids),
		WithMetrics(a.Metrics),
		WithPendingTimeout(cfg.Client.PendingTimeout),
	)
	a.Typing = NewTypingTracker(a.Transport)
	a.Users = NewUserService(a.API)

	a.watchTransport()
	a.Session.OnChange(func(user *entity.User) {
		a.onIdentityChange(ctx, user)
	})
	return a, nil
}

// initRedis creates the client of the session token backend
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Token.Redis.Addr(),
		Password: cfg.Token.Redis.Password,
		DB:       cfg.Token.Redis.DB,
	})
}

func (a *App) watchTransport() {
	a.subs = []*gateway.Subscription{
		a.Transport.On(constant.EventConnect, func(...json.RawMessage) {
			a.Metrics.SetConnected(true)
		}),
		a.Transport.On(constant.EventDisconnect, func(args ...json.RawMessage) {
			a.Metrics.SetConnected(false)
			var reason string
			_ = gateway.Decode(firstArg(args), &reason)
			log.Info("socket disconnected: reason=%s", reason)
		}),
		a.Transport.On(constant.EventConnectError, func(args ...json.RawMessage) {
			a.Metrics.IncConnectError()
			log.Warn("socket connect error: %s", string(firstArg(args)))
		}),
		a.Transport.On(gateway.EventReconnectAttempt, func(...json.RawMessage) {
			a.Metrics.IncReconnect()
		}),
		a.Transport.On(gateway.EventReconnectFailed, func(...json.RawMessage) {
			log.Warn("socket reconnect failed")
		}),
	}
}

func (a *App) onIdentityChange(ctx context.Context, user *entity.User) {
	if user == nil {
		a.Stream.SetChat(ctx, "")
		a.Typing.SetChat("")
		a.Conversations.Deselect()
		a.Transport.Disconnect()
		return
	}

	if _, err := a.Transport.Connect(ctx, a.Session.Token(ctx)); err != nil {
		log.CtxError(ctx, "socket connect failed: %v", err)
	}
	if err := a.Conversations.FetchAll(ctx); err != nil {
		log.CtxWarn(ctx, "initial conversation load failed: %v", err)
	}
}

// Open selects the conversation with id and attaches the stream and the
// typing tracker to it, seeding the stream with the loaded history
func (a *App) Open(ctx context.Context, id string) (*ActiveConversation, error) {
	conv, ok := a.Conversations.Get(id)
	if !ok {
		conv = &entity.Conversation{Id: id}
	}
	if err := a.Conversations.Select(ctx, conv); err != nil {
		return nil, err
	}
	a.Stream.SetChat(ctx, id)
	a.Typing.SetChat(id)

	active := a.Conversations.Active()
	if active != nil {
		a.Stream.Seed(active.Messages)
	}
	if err := a.Conversations.MarkRead(id); err != nil {
		log.CtxDebug(ctx, "mark read skipped: chat_id=%s, error=%v", id, err)
	}
	return active, nil
}

// WaitConnected blocks until the socket is connected or ctx is done
func (a *App) WaitConnected(ctx context.Context) error {
	socket := a.Transport.GetSocket()
	if socket == nil {
		return gateway.ErrNotConnected
	}
	return socket.WaitConnected(ctx)
}

// Close detaches every component and releases the transport
func (a *App) Close() {
	if a.Transport != nil {
		a.Transport.Off(a.subs...)
	}
	if a.Stream != nil {
		a.Stream.Close()
	}
	if a.Typing != nil {
		a.Typing.Close()
	}
	if a.Conversations != nil {
		a.Conversations.Close()
	}
	if a.Presence != nil {
		a.Presence.Close()
	}
	if a.Transport != nil {
		a.Transport.Disconnect()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			log.Warn("redis close failed: %v", err)
		}
	}
}

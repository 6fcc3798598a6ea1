package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Options configures a Transport
type Options struct {
	URL               string
	Path              string
	Transports        []string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration
	AuthStrategy      string
	Jar               http.CookieJar
	PollingClient     *client.Client
}

// Transport owns at most one socket at a time. Handlers registered on the
// Transport are kept across sockets, so services can subscribe before the
// first Connect and after a Disconnect.
type Transport struct {
	opts     Options
	handlers *HandlerMap

	mu     sync.Mutex
	socket *Socket
}

// NewTransport creates a new Transport
func NewTransport(opts Options) *Transport {
	if opts.Path == "" {
		opts.Path = "/socket.io/"
	}
	if len(opts.Transports) == 0 {
		opts.Transports = []string{constant.TransportWebSocket, constant.TransportPolling}
	}
	return &Transport{
		opts:     opts,
		handlers: NewHandlerMap(),
	}
}

// Connect returns the current socket if it is connected or still connecting;
// otherwise it starts a new one authenticated with token. Connection failures
// after this point are reported through connect_error, not returned.
func (t *Transport) Connect(ctx context.Context, token string) (*Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.socket != nil && t.socket.Active() {
		return t.socket, nil
	}
	if t.opts.URL == "" {
		log.CtxError(ctx, "socket url is not configured")
		return nil, errcode.ErrConfigMissing.WithMsg("socket url is not configured")
	}

	var auth interface{}
	if t.opts.AuthStrategy != constant.AuthStrategyCookie {
		auth = map[string]string{"token": token}
	}

	socket := NewSocket(SocketOptions{
		Dial: DialOptions{
			URL:     t.opts.URL,
			Path:    t.opts.Path,
			Jar:     t.opts.Jar,
			Timeout: t.opts.DialTimeout,
		},
		Transports:        t.opts.Transports,
		Auth:              auth,
		ReconnectAttempts: t.opts.ReconnectAttempts,
		ReconnectDelay:    t.opts.ReconnectDelay,
		PollingClient:     t.opts.PollingClient,
	}, t.handlers)

	log.CtxInfo(ctx, "socket connecting: conn_id=%s, url=%s, transports=%v", socket.ConnId, t.opts.URL, t.opts.Transports)
	socket.Start()
	t.socket = socket
	return socket, nil
}

// GetSocket returns the current socket, or nil
func (t *Transport) GetSocket() *Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socket
}

// IsConnected reports whether a socket exists and is connected
func (t *Transport) IsConnected() bool {
	s := t.GetSocket()
	return s != nil && s.Connected()
}

// Disconnect closes the current socket; calling it with no socket is a no-op
func (t *Transport) Disconnect() {
	t.mu.Lock()
	s := t.socket
	t.socket = nil
	t.mu.Unlock()

	if s == nil {
		return
	}
	log.Info("socket disconnect requested: conn_id=%s", s.ConnId)
	s.Disconnect()
}

// On registers a handler for event on every present and future socket
func (t *Transport) On(event string, h Handler) *Subscription {
	return t.handlers.Register(event, h, false)
}

// Once registers a handler that runs for the next event only
func (t *Transport) Once(event string, h Handler) *Subscription {
	return t.handlers.Register(event, h, true)
}

// Off removes handlers
func (t *Transport) Off(subs ...*Subscription) {
	for _, sub := range subs {
		t.handlers.Unregister(sub)
	}
}

// Emit sends an event on the current socket
func (t *Transport) Emit(event string, args ...interface{}) error {
	s := t.GetSocket()
	if s == nil {
		return ErrNotConnected
	}
	return s.Emit(event, args...)
}

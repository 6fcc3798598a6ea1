package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/tidwall/gjson"
)

// SocketOptions configures one Socket.IO socket
type SocketOptions struct {
	Dial              DialOptions
	Transports        []string
	Auth              interface{} // CONNECT payload; nil sends none
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PollingClient     *client.Client
}

type dispatchItem struct {
	event string
	args  []json.RawMessage
}

// Socket is a client Socket.IO socket. It stays the same object across
// reconnect attempts; handlers registered on it survive them.
type Socket struct {
	ConnId   string
	opts     SocketOptions
	handlers *HandlerMap

	mu      sync.Mutex
	conn    ClientConn
	sid     string
	stateCh chan struct{} // closed and replaced on every state change

	connected atomic.Bool
	active    atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	events    chan dispatchItem
	done      chan struct{}
}

// NewSocket creates a socket bound to handlers; Start begins connecting
func NewSocket(opts SocketOptions, handlers *HandlerMap) *Socket {
	ctx, cancel := context.WithCancel(context.Background())
	if handlers == nil {
		handlers = NewHandlerMap()
	}
	if len(opts.Transports) == 0 {
		opts.Transports = []string{constant.TransportWebSocket, constant.TransportPolling}
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}
	return &Socket{
		ConnId:   uuid.NewString(),
		opts:     opts,
		handlers: handlers,
		stateCh:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan dispatchItem, DispatchQueueSize),
		done:     make(chan struct{}),
	}
}

// Start starts the connection manager and the dispatch loop
func (s *Socket) Start() {
	s.active.Store(true)
	go s.dispatchLoop()
	go s.run()
}

// run connects, serves the connection and reconnects until the socket is
// closed, the server refuses or disconnects it, or attempts run out.
func (s *Socket) run() {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(s.ctx, "socket run loop panic: conn_id=%s, error=%v", s.ConnId, r)
		}
		s.active.Store(false)
		s.notify()
		close(s.events)
	}()

	failures := 0
	for {
		wasConnected, reason, err := s.connectAndServe()

		if wasConnected {
			s.connected.Store(false)
			s.notify()
			s.enqueue(constant.EventDisconnect, reason)
			failures = 0
		}

		switch {
		case s.ctx.Err() != nil:
			return
		case errors.Is(err, ErrServerDisconnect):
			log.CtxInfo(s.ctx, "socket disconnected by server: conn_id=%s", s.ConnId)
			return
		case errors.Is(err, ErrConnectRefused):
			return
		}

		failures++
		if failures > s.opts.ReconnectAttempts {
			log.CtxWarn(s.ctx, "socket reconnect failed: conn_id=%s, attempts=%d", s.ConnId, s.opts.ReconnectAttempts)
			s.enqueue(EventReconnectFailed)
			return
		}

		log.CtxDebug(s.ctx, "socket reconnecting: conn_id=%s, attempt=%d, error=%v", s.ConnId, failures, err)
		s.enqueue(EventReconnectAttempt, failures)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

// connectAndServe runs one connection from dial to drop
func (s *Socket) connectAndServe() (bool, string, error) {
	conn, err := s.dial()
	if err != nil {
		if s.ctx.Err() == nil {
			log.CtxWarn(s.ctx, "socket connect error: conn_id=%s, error=%v", s.ConnId, err)
			s.enqueue(constant.EventConnectError, map[string]string{"message": err.Error()})
		}
		return false, "", err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.sid = ""
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if s.ctx.Err() != nil {
		return false, ReasonClientDisconnect, s.ctx.Err()
	}

	heartbeat, err := s.handshake(conn)
	if err != nil {
		if s.ctx.Err() == nil {
			log.CtxWarn(s.ctx, "socket connect error: conn_id=%s, transport=%s, error=%v", s.ConnId, conn.Name(), err)
			s.enqueue(constant.EventConnectError, map[string]string{"message": connectErrorMessage(err)})
		}
		return false, "", err
	}

	s.connected.Store(true)
	s.notify()
	log.CtxInfo(s.ctx, "socket connected: conn_id=%s, sid=%s, transport=%s", s.ConnId, s.Id(), conn.Name())
	s.enqueue(constant.EventConnect)

	reason, err := s.readLoop(conn, heartbeat)
	log.CtxInfo(s.ctx, "socket disconnected: conn_id=%s, reason=%s", s.ConnId, reason)
	return true, reason, err
}

// dial tries the configured transports in order
func (s *Socket) dial() (ClientConn, error) {
	var lastErr error
	for _, transport := range s.opts.Transports {
		ctx := s.ctx
		cancel := func() {}
		if s.opts.Dial.Timeout > 0 {
			ctx, cancel = context.WithTimeout(s.ctx, s.opts.Dial.Timeout)
		}

		var conn ClientConn
		var err error
		switch transport {
		case constant.TransportWebSocket:
			conn, err = DialWebSocket(ctx, s.opts.Dial)
		case constant.TransportPolling:
			conn, err = DialPolling(ctx, s.opts.PollingClient, s.opts.Dial)
		default:
			err = ErrNoTransport.WithMsg("unknown transport " + transport)
		}
		cancel()

		if err == nil {
			return conn, nil
		}
		log.CtxDebug(s.ctx, "transport dial failed: conn_id=%s, transport=%s, error=%v", s.ConnId, transport, err)
		lastErr = err
		if s.ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ErrNoTransport
	}
	return nil, lastErr
}

// handshake reads the open packet, sends CONNECT and waits for the answer
func (s *Socket) handshake(conn ClientConn) (time.Duration, error) {
	wait := s.opts.Dial.Timeout
	if wait <= 0 {
		wait = DefaultPingInterval + DefaultPingTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))

	raw, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	packet, err := DecodeEnginePacket(raw)
	if err != nil {
		return 0, err
	}
	if packet.Type != EIOOpen {
		return 0, ErrInvalidProtocol.WithMsg("expected open packet")
	}
	var open OpenPacket
	if err := Decode(packet.Data, &open); err != nil {
		return 0, ErrInvalidProtocol.Wrap(err)
	}

	connect, err := EncodeConnect(s.opts.Auth)
	if err != nil {
		return 0, err
	}
	if err := conn.WriteMessage(connect); err != nil {
		return 0, err
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		raw, err := conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		packet, err := DecodeEnginePacket(raw)
		if err != nil {
			return 0, err
		}

		switch packet.Type {
		case EIOPing:
			if err := conn.WriteMessage(EncodeEnginePacket(EIOPong, nil)); err != nil {
				return 0, err
			}
		case EIOClose:
			return 0, ErrConnClosed
		case EIOMessage:
			sp, err := DecodeSocketPacket(packet.Data)
			if err != nil {
				return 0, err
			}
			switch sp.Type {
			case SIOConnect:
				s.mu.Lock()
				s.sid = gjson.GetBytes(sp.Data, "sid").String()
				s.mu.Unlock()
				return open.Heartbeat(), nil
			case SIOConnectError:
				return 0, ErrConnectRefused.WithMsg(sp.ErrorMessage())
			default:
				log.CtxDebug(s.ctx, "ignoring packet before connect: conn_id=%s, type=%c", s.ConnId, sp.Type)
			}
		}
	}
}

// readLoop continuously reads packets until the connection drops
func (s *Socket) readLoop(conn ClientConn, heartbeat time.Duration) (reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(s.ctx, "socket read loop panic: conn_id=%s, error=%v", s.ConnId, r)
			reason, err = ReasonTransportError, ErrPanic
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		raw, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return ReasonClientDisconnect, s.ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return ReasonPingTimeout, ErrPingTimeout
			}
			if errors.Is(err, ErrConnClosed) {
				return ReasonTransportClose, err
			}
			return ReasonTransportError, err
		}

		packet, err := DecodeEnginePacket(raw)
		if err != nil {
			log.CtxWarn(s.ctx, "invalid engine packet: conn_id=%s, error=%v", s.ConnId, err)
			continue
		}

		switch packet.Type {
		case EIOPing:
			if err := conn.WriteMessage(EncodeEnginePacket(EIOPong, nil)); err != nil {
				return ReasonTransportError, err
			}
		case EIOClose:
			return ReasonTransportClose, ErrConnClosed
		case EIOMessage:
			if done, reason, err := s.handlePacket(packet.Data); done {
				return reason, err
			}
		}
	}
}

// handlePacket handles one Socket.IO packet; done reports a server disconnect
func (s *Socket) handlePacket(data []byte) (bool, string, error) {
	sp, err := DecodeSocketPacket(data)
	if err != nil {
		log.CtxWarn(s.ctx, "invalid socket packet: conn_id=%s, error=%v", s.ConnId, err)
		return false, "", nil
	}

	switch sp.Type {
	case SIOEvent:
		event, args, err := sp.Event()
		if err != nil {
			log.CtxWarn(s.ctx, "invalid event packet: conn_id=%s, error=%v", s.ConnId, err)
			return false, "", nil
		}
		s.events <- dispatchItem{event: event, args: args}
	case SIODisconnect:
		return true, ReasonServerDisconnect, ErrServerDisconnect
	default:
		log.CtxDebug(s.ctx, "ignoring socket packet: conn_id=%s, type=%c", s.ConnId, sp.Type)
	}
	return false, "", nil
}

// enqueue queues a locally generated event for the dispatch loop
func (s *Socket) enqueue(event string, args ...interface{}) {
	raws := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			log.CtxError(s.ctx, "marshal event arg error: event=%s, error=%v", event, err)
			continue
		}
		raws = append(raws, b)
	}
	s.events <- dispatchItem{event: event, args: raws}
}

// dispatchLoop calls handlers sequentially in delivery order
func (s *Socket) dispatchLoop() {
	defer close(s.done)
	for item := range s.events {
		s.dispatch(item)
	}
}

func (s *Socket) dispatch(item dispatchItem) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(s.ctx, "event handler panic: conn_id=%s, event=%s, error=%v", s.ConnId, item.event, r)
		}
	}()
	s.handlers.Dispatch(item.event, item.args...)
}

func (s *Socket) notify() {
	s.mu.Lock()
	close(s.stateCh)
	s.stateCh = make(chan struct{})
	s.mu.Unlock()
}

// On registers a handler for event
func (s *Socket) On(event string, h Handler) *Subscription {
	return s.handlers.Register(event, h, false)
}

// Once registers a handler that runs for the next event only
func (s *Socket) Once(event string, h Handler) *Subscription {
	return s.handlers.Register(event, h, true)
}

// Off removes handlers
func (s *Socket) Off(subs ...*Subscription) {
	for _, sub := range subs {
		s.handlers.Unregister(sub)
	}
}

// Emit sends an event to the server
func (s *Socket) Emit(event string, args ...interface{}) error {
	data, err := EncodeEvent(event, args...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || !s.connected.Load() {
		return ErrNotConnected
	}
	return conn.WriteMessage(data)
}

// Connected reports whether the socket is currently connected
func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Active reports whether the socket is connected or still trying to connect
func (s *Socket) Active() bool {
	return s.active.Load() && s.ctx.Err() == nil
}

// Id returns the server assigned socket id, empty while disconnected
func (s *Socket) Id() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// WaitConnected blocks until the socket connects, gives up, or ctx is done
func (s *Socket) WaitConnected(ctx context.Context) error {
	for {
		s.mu.Lock()
		ch := s.stateCh
		s.mu.Unlock()

		if s.connected.Load() {
			return nil
		}
		if !s.active.Load() {
			return ErrNotConnected
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Disconnect closes the socket for good; handlers see "io client disconnect"
func (s *Socket) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil && s.connected.Load() {
		_ = conn.WriteMessage(EncodeDisconnect())
	}
	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

// Done is closed once every queued event has been dispatched after Disconnect
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// connectErrorMessage prefers the server supplied CONNECT_ERROR message
func connectErrorMessage(err error) string {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

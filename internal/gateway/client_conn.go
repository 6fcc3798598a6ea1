package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
)

// ClientConn is one Engine.IO transport connection. ReadMessage returns a
// single engine packet; WriteMessage queues one.
type ClientConn interface {
	Name() string
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
}

// DialOptions describes the endpoint of a Socket.IO server
type DialOptions struct {
	URL     string // http(s) or ws(s) origin, e.g. http://localhost:3000
	Path    string // defaults to /socket.io/
	Jar     http.CookieJar
	Header  http.Header
	Timeout time.Duration
}

// endpoint builds the Engine.IO url for a transport
func endpoint(opts DialOptions, transport, sid string) (*url.URL, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, ErrInvalidProtocol.Wrap(err)
	}
	if u.Host == "" {
		return nil, ErrInvalidProtocol.WithMsg("socket url has no host: " + opts.URL)
	}

	secure := u.Scheme == "https" || u.Scheme == "wss"
	switch {
	case transport == constant.TransportWebSocket && secure:
		u.Scheme = "wss"
	case transport == constant.TransportWebSocket:
		u.Scheme = "ws"
	case secure:
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}

	path := opts.Path
	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path

	q := url.Values{}
	q.Set("EIO", EngineVersion)
	q.Set("transport", transport)
	if sid != "" {
		q.Set("sid", sid)
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// websocketClientConn implements ClientConn using gorilla/websocket
type websocketClientConn struct {
	conn      *websocket.Conn
	writeChan chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	writeWait time.Duration
}

// DialWebSocket opens a websocket transport
func DialWebSocket(ctx context.Context, opts DialOptions) (ClientConn, error) {
	u, err := endpoint(opts, constant.TransportWebSocket, "")
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.Timeout,
		Jar:              opts.Jar,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), opts.Header)
	if err != nil {
		if resp != nil {
			log.CtxDebug(ctx, "websocket handshake rejected: url=%s, status=%d", u.Redacted(), resp.StatusCode)
		}
		return nil, err
	}
	return NewWebSocketClientConn(conn, MaxMessageSize), nil
}

// NewWebSocketClientConn wraps an established websocket connection
func NewWebSocketClientConn(conn *websocket.Conn, maxMsgSize int64) *websocketClientConn {
	c := &websocketClientConn{
		conn:      conn,
		writeChan: make(chan []byte, WriteChannelSize),
		writeWait: WriteWait,
	}

	conn.SetReadLimit(maxMsgSize)

	go c.writeLoop()

	return c
}

func (c *websocketClientConn) Name() string {
	return constant.TransportWebSocket
}

// writeLoop handles all writes to the connection (single writer pattern).
// Engine.IO heartbeats are packets, so no websocket level pings are sent.
func (c *websocketClientConn) writeLoop() {
	defer c.conn.Close()

	for message := range c.writeChan {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Warn("write message error: %v", err)
			return
		}
	}

	// Channel closed, send close message
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ReadMessage reads a message from the connection
func (c *websocketClientConn) ReadMessage() ([]byte, error) {
	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return message, nil
		}
		log.Debug("dropping binary websocket frame: size=%d", len(message))
	}
}

// WriteMessage queues a message to be written
func (c *websocketClientConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close flushes queued writes, sends a close frame and closes the connection
func (c *websocketClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}

// SetReadDeadline sets the read deadline
func (c *websocketClientConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

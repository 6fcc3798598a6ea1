package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
)

// pollingClientConn implements ClientConn over Engine.IO HTTP long-polling
type pollingClientConn struct {
	httpClient *client.Client
	opts       DialOptions
	sid        string
	ctx        context.Context
	cancel     context.CancelFunc

	mu       sync.Mutex
	queue    [][]byte
	deadline time.Time

	writeChan chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewPollingHTTPClient creates the Hertz client used by the polling transport.
// It has no read timeout of its own; every poll carries the heartbeat deadline.
func NewPollingHTTPClient(rawURL string, dialTimeout time.Duration) (*client.Client, error) {
	opts := []config.ClientOption{
		client.WithDialTimeout(dialTimeout),
		client.WithWriteTimeout(WriteWait),
	}
	if strings.HasPrefix(rawURL, "https://") || strings.HasPrefix(rawURL, "wss://") {
		opts = append(opts,
			client.WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
			client.WithDialer(standard.NewDialer()),
		)
	}
	return client.NewClient(opts...)
}

// DialPolling performs the Engine.IO polling handshake. The open packet and
// anything delivered with it are returned by subsequent ReadMessage calls.
func DialPolling(ctx context.Context, httpClient *client.Client, opts DialOptions) (ClientConn, error) {
	if httpClient == nil {
		var err error
		httpClient, err = NewPollingHTTPClient(opts.URL, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create polling client: %w", err)
		}
	}

	c := &pollingClientConn{
		httpClient: httpClient,
		opts:       opts,
		writeChan:  make(chan []byte, WriteChannelSize),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	deadline := time.Time{}
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}
	packets, err := c.poll(ctx, deadline)
	if err != nil {
		c.cancel()
		return nil, err
	}
	if len(packets) == 0 || packets[0][0] != EIOOpen {
		c.cancel()
		return nil, ErrInvalidProtocol.WithMsg("polling handshake did not start with an open packet")
	}

	var open OpenPacket
	if err := Decode(packets[0][1:], &open); err != nil {
		c.cancel()
		return nil, ErrInvalidProtocol.Wrap(err)
	}
	if open.Sid == "" {
		c.cancel()
		return nil, ErrInvalidProtocol.WithMsg("open packet has no sid")
	}
	c.sid = open.Sid
	c.queue = packets

	go c.writeLoop()

	return c, nil
}

func (c *pollingClientConn) Name() string {
	return constant.TransportPolling
}

// ReadMessage returns the next queued packet, long-polling when the queue is empty
func (c *pollingClientConn) ReadMessage() ([]byte, error) {
	for {
		if c.closed.Load() {
			return nil, ErrConnClosed
		}

		c.mu.Lock()
		if len(c.queue) > 0 {
			packet := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return packet, nil
		}
		deadline := c.deadline
		c.mu.Unlock()

		packets, err := c.poll(c.ctx, deadline)
		if err != nil {
			if c.closed.Load() {
				return nil, ErrConnClosed
			}
			return nil, err
		}

		c.mu.Lock()
		c.queue = append(c.queue, packets...)
		c.mu.Unlock()
	}
}

// poll issues one GET and splits the returned payload
func (c *pollingClientConn) poll(ctx context.Context, deadline time.Time) ([][]byte, error) {
	u, err := endpoint(c.opts, constant.TransportPolling, c.sid)
	if err != nil {
		return nil, err
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(u.String())
	c.attachCookies(req, u)

	if deadline.IsZero() {
		err = c.httpClient.Do(ctx, req, resp)
	} else {
		err = c.httpClient.DoDeadline(ctx, req, resp, deadline)
	}
	if err != nil {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, timeoutError{err}
		}
		return nil, err
	}
	c.storeCookies(resp, u)

	if resp.StatusCode() != consts.StatusOK {
		return nil, ErrInvalidProtocol.WithMsg(fmt.Sprintf("poll failed: status=%d", resp.StatusCode()))
	}

	var packets [][]byte
	for _, p := range SplitPayload(resp.Body()) {
		packets = append(packets, append([]byte(nil), p...))
	}
	return packets, nil
}

// writeLoop batches queued packets into POST requests (single writer pattern)
func (c *pollingClientConn) writeLoop() {
	defer c.cancel()

	for first := range c.writeChan {
		batch := [][]byte{first}
	drain:
		for {
			select {
			case next, ok := <-c.writeChan:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		if err := c.post(JoinPayload(batch)); err != nil {
			log.Warn("write message error: sid=%s, error=%v", c.sid, err)
			c.closed.Store(true)
			return
		}
	}

	// Channel closed, tell the server the transport is gone
	if err := c.post([]byte{EIOClose}); err != nil {
		log.Debug("send close packet error: sid=%s, error=%v", c.sid, err)
	}
}

func (c *pollingClientConn) post(payload []byte) error {
	u, err := endpoint(c.opts, constant.TransportPolling, c.sid)
	if err != nil {
		return err
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(u.String())
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	req.SetBody(payload)
	c.attachCookies(req, u)

	if err := c.httpClient.DoDeadline(context.Background(), req, resp, time.Now().Add(WriteWait)); err != nil {
		return err
	}
	if resp.StatusCode() != consts.StatusOK {
		return ErrInvalidProtocol.WithMsg(fmt.Sprintf("post failed: status=%d", resp.StatusCode()))
	}
	return nil
}

// WriteMessage queues a message to be written
func (c *pollingClientConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close stops polling after the in-flight request and posts a close packet
func (c *pollingClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed.Store(true)
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}

// SetReadDeadline bounds the next long-poll
func (c *pollingClientConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *pollingClientConn) attachCookies(req *protocol.Request, u *url.URL) {
	if c.opts.Jar == nil {
		return
	}
	for _, ck := range c.opts.Jar.Cookies(httpURL(u)) {
		req.Header.SetCookie(ck.Name, ck.Value)
	}
}

func (c *pollingClientConn) storeCookies(resp *protocol.Response, u *url.URL) {
	if c.opts.Jar == nil {
		return
	}
	header := http.Header{}
	resp.Header.VisitAllCookie(func(_, value []byte) {
		header.Add("Set-Cookie", string(value))
	})
	if len(header) > 0 {
		c.opts.Jar.SetCookies(httpURL(u), (&http.Response{Header: header}).Cookies())
	}
}

// httpURL strips the query so jar lookups match the origin the API client used
func httpURL(u *url.URL) *url.URL {
	out := *u
	out.RawQuery = ""
	return &out
}

// timeoutError marks a poll that outlived its deadline as a net.Error timeout
type timeoutError struct{ error }

func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return false }

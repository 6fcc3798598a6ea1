package gateway

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testOpenPacket = `0{"sid":"%s","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`

// fakeServer is a minimal in-process Socket.IO server
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	refuse        string // CONNECT_ERROR message sent instead of accepting
	websocketOnly bool
	pollingOnly   bool

	connects atomic.Int32
	auth     chan string
	received chan string

	mu      sync.Mutex
	wsConns []*websocket.Conn
	polls   map[string]*pollSession
}

type pollSession struct {
	out    chan string
	closed atomic.Bool
}

func newFakeServer(t *testing.T, configure ...func(*fakeServer)) *fakeServer {
	f := &fakeServer{
		t:        t,
		auth:     make(chan string, 16),
		received: make(chan string, 64),
		polls:    make(map[string]*pollSession),
	}
	for _, c := range configure {
		c(f)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) URL() string {
	return f.srv.URL
}

func (f *fakeServer) Close() {
	f.mu.Lock()
	for _, c := range f.wsConns {
		_ = c.Close()
	}
	f.mu.Unlock()
	f.srv.Close()
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != EngineVersion {
		http.Error(w, "bad endpoint", http.StatusNotFound)
		return
	}
	switch r.URL.Query().Get("transport") {
	case "websocket":
		if f.pollingOnly {
			http.Error(w, "transport unavailable", http.StatusBadRequest)
			return
		}
		f.serveWebSocket(w, r)
	case "polling":
		if f.websocketOnly {
			http.Error(w, "transport unavailable", http.StatusBadRequest)
			return
		}
		f.servePolling(w, r)
	default:
		http.Error(w, "unknown transport", http.StatusBadRequest)
	}
}

// connectReply answers a CONNECT packet
func (f *fakeServer) connectReply(packet string) string {
	f.auth <- strings.TrimPrefix(packet, "40")
	if f.refuse != "" {
		return fmt.Sprintf(`44{"message":%q}`, f.refuse)
	}
	n := f.connects.Add(1)
	return fmt.Sprintf(`40{"sid":"sio-%d"}`, n)
}

func (f *fakeServer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.wsConns = append(f.wsConns, conn)
	n := len(f.wsConns)
	f.mu.Unlock()

	_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(testOpenPacket, fmt.Sprintf("eio-%d", n))))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		packet := string(msg)
		if strings.HasPrefix(packet, "40") {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f.connectReply(packet)))
			continue
		}
		f.received <- packet
	}
}

func (f *fakeServer) servePolling(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")

	if sid == "" {
		f.mu.Lock()
		sid = fmt.Sprintf("poll-%d", len(f.polls)+1)
		f.polls[sid] = &pollSession{out: make(chan string, 64)}
		f.mu.Unlock()
		// the handshake must hand out the sid the session is stored under
		_, _ = io.WriteString(w, fmt.Sprintf(testOpenPacket, sid))
		return
	}

	f.mu.Lock()
	sess := f.polls[sid]
	f.mu.Unlock()
	if sess == nil || sess.closed.Load() {
		http.Error(w, "unknown sid", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		for _, p := range strings.Split(string(body), string(rune(PayloadSeparator))) {
			switch {
			case strings.HasPrefix(p, "40"):
				sess.out <- f.connectReply(p)
			case p == "1":
				sess.closed.Store(true)
				sess.out <- "6"
			default:
				f.received <- p
			}
		}
		_, _ = io.WriteString(w, "ok")
	case http.MethodGet:
		select {
		case p := <-sess.out:
			batch := []string{p}
			for len(sess.out) > 0 {
				batch = append(batch, <-sess.out)
			}
			_, _ = io.WriteString(w, strings.Join(batch, string(rune(PayloadSeparator))))
		case <-time.After(time.Second):
			_, _ = io.WriteString(w, "6")
		}
	}
}

// Push sends a raw engine packet to every live connection
func (f *fakeServer) Push(packet string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.wsConns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(packet))
	}
	for _, s := range f.polls {
		if !s.closed.Load() {
			s.out <- packet
		}
	}
}

// DropAll closes every websocket connection without a close handshake
func (f *fakeServer) DropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.wsConns {
		_ = c.UnderlyingConn().Close()
	}
	f.wsConns = nil
}

// Expect waits for the next packet the client sent
func (f *fakeServer) Expect() string {
	f.t.Helper()
	select {
	case p := <-f.received:
		return p
	case <-time.After(3 * time.Second):
		f.t.Fatal("timed out waiting for client packet")
		return ""
	}
}

func (f *fakeServer) ExpectAuth() string {
	f.t.Helper()
	select {
	case a := <-f.auth:
		return a
	case <-time.After(3 * time.Second):
		f.t.Fatal("timed out waiting for connect packet")
		return ""
	}
}

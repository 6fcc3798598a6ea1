package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(url string, configure ...func(*Options)) *Transport {
	opts := Options{
		URL:               url,
		Transports:        []string{constant.TransportWebSocket},
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		DialTimeout:       2 * time.Second,
	}
	for _, c := range configure {
		c(&opts)
	}
	return NewTransport(opts)
}

func connectAndWait(t *testing.T, tr *Transport, token string) *Socket {
	t.Helper()
	s, err := tr.Connect(context.Background(), token)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.WaitConnected(ctx))
	return s
}

// collect forwards every call of event into a channel
func collect(tr *Transport, event string) chan []json.RawMessage {
	ch := make(chan []json.RawMessage, 16)
	tr.On(event, func(args ...json.RawMessage) { ch <- args })
	return ch
}

func next(t *testing.T, ch chan []json.RawMessage) []json.RawMessage {
	t.Helper()
	select {
	case args := <-ch:
		return args
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestTransport_ConnectEmitReceive(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	connected := collect(tr, constant.EventConnect)
	messages := collect(tr, constant.EventReceiveMessage)

	s := connectAndWait(t, tr, "tok-1")
	assert.JSONEq(t, `{"token":"tok-1"}`, srv.ExpectAuth())
	next(t, connected)
	assert.True(t, tr.IsConnected())
	assert.Equal(t, "sio-1", s.Id())

	require.NoError(t, tr.Emit(constant.EventJoinChat, "c1"))
	assert.Equal(t, `42["joinChat","c1"]`, srv.Expect())

	srv.Push(`42["receiveMessage",{"id":"m1","chat_id":"c1"}]`)
	args := next(t, messages)
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"id":"m1","chat_id":"c1"}`, string(args[0]))
}

func TestTransport_AnswersPing(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	connectAndWait(t, tr, "tok")
	srv.Push("2")
	assert.Equal(t, "3", srv.Expect())
}

func TestTransport_ConnectIsIdempotent(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	first := connectAndWait(t, tr, "tok")
	second, err := tr.Connect(context.Background(), "other")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first, tr.GetSocket())
}

func TestTransport_CookieStrategySendsNoAuth(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL(), func(o *Options) { o.AuthStrategy = constant.AuthStrategyCookie })
	defer tr.Disconnect()

	connectAndWait(t, tr, "")
	assert.Equal(t, "", srv.ExpectAuth())
}

func TestTransport_MissingURL(t *testing.T) {
	tr := newTestTransport("")
	s, err := tr.Connect(context.Background(), "tok")
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, errcode.ErrConfigMissing))
	assert.False(t, tr.IsConnected())
}

func TestTransport_EmitWithoutSocket(t *testing.T) {
	tr := newTestTransport("http://localhost:1")
	assert.True(t, errors.Is(tr.Emit(constant.EventTyping, "c1"), ErrNotConnected))
}

func TestTransport_Disconnect(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	disconnected := collect(tr, constant.EventDisconnect)

	s := connectAndWait(t, tr, "tok")
	tr.Disconnect()

	assert.Equal(t, "41", srv.Expect())
	args := next(t, disconnected)
	require.Len(t, args, 1)
	assert.Equal(t, `"io client disconnect"`, string(args[0]))

	assert.Nil(t, tr.GetSocket())
	assert.False(t, tr.IsConnected())
	assert.False(t, s.Connected())
	assert.True(t, errors.Is(tr.Emit(constant.EventTyping, "c1"), ErrNotConnected))

	// idempotent
	tr.Disconnect()

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("socket did not shut down")
	}
}

func TestTransport_ReconnectsAfterDrop(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	connected := collect(tr, constant.EventConnect)
	disconnected := collect(tr, constant.EventDisconnect)
	attempts := collect(tr, EventReconnectAttempt)

	s := connectAndWait(t, tr, "tok")
	next(t, connected)

	srv.DropAll()
	next(t, disconnected)
	assert.Equal(t, `1`, string(next(t, attempts)[0]))
	next(t, connected)

	assert.Same(t, s, tr.GetSocket())
	assert.Equal(t, int32(2), srv.connects.Load())
	// every CONNECT carries the auth payload
	srv.ExpectAuth()
	assert.JSONEq(t, `{"token":"tok"}`, srv.ExpectAuth())
}

func TestTransport_ServerDisconnectDoesNotReconnect(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	disconnected := collect(tr, constant.EventDisconnect)
	s := connectAndWait(t, tr, "tok")

	srv.Push("41")
	args := next(t, disconnected)
	assert.Equal(t, `"io server disconnect"`, string(args[0]))

	assert.Eventually(t, func() bool { return !s.Active() }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.connects.Load())

	// a fresh Connect replaces the finished socket
	again := connectAndWait(t, tr, "tok")
	assert.NotSame(t, s, again)
}

func TestTransport_ConnectError(t *testing.T) {
	srv := newFakeServer(t, func(f *fakeServer) { f.refuse = "invalid token" })
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	connectErrors := collect(tr, constant.EventConnectError)
	s, err := tr.Connect(context.Background(), "bad")
	require.NoError(t, err)

	args := next(t, connectErrors)
	assert.JSONEq(t, `{"message":"invalid token"}`, string(args[0]))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.True(t, errors.Is(s.WaitConnected(ctx), ErrNotConnected))
	assert.False(t, tr.IsConnected())
}

func TestTransport_ReconnectFailed(t *testing.T) {
	srv := newFakeServer(t)
	url := srv.URL()
	srv.Close()

	tr := newTestTransport(url, func(o *Options) { o.ReconnectAttempts = 2 })
	defer tr.Disconnect()

	attempts := collect(tr, EventReconnectAttempt)
	failed := collect(tr, EventReconnectFailed)
	connectErrors := collect(tr, constant.EventConnectError)

	_, err := tr.Connect(context.Background(), "tok")
	require.NoError(t, err)

	next(t, connectErrors)
	assert.Equal(t, `1`, string(next(t, attempts)[0]))
	assert.Equal(t, `2`, string(next(t, attempts)[0]))
	next(t, failed)
	assert.False(t, tr.IsConnected())
}

func TestTransport_OnceFiresOnce(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	calls := make(chan struct{}, 4)
	tr.Once(constant.EventReceiveMessage, func(...json.RawMessage) { calls <- struct{}{} })
	all := collect(tr, constant.EventReceiveMessage)

	connectAndWait(t, tr, "tok")
	srv.Push(`42["receiveMessage",{"id":"a"}]`)
	srv.Push(`42["receiveMessage",{"id":"b"}]`)
	next(t, all)
	next(t, all)
	assert.Len(t, calls, 1)
}

func TestTransport_HandlersRunInDeliveryOrder(t *testing.T) {
	srv := newFakeServer(t)
	tr := newTestTransport(srv.URL())
	defer tr.Disconnect()

	messages := collect(tr, constant.EventReceiveMessage)
	connectAndWait(t, tr, "tok")

	for i := 0; i < 10; i++ {
		srv.Push(`42["receiveMessage",` + string(rune('0'+i)) + `]`)
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, string(rune('0'+i)), string(next(t, messages)[0]))
	}
}

func TestTransport_PollingFallback(t *testing.T) {
	srv := newFakeServer(t, func(f *fakeServer) { f.pollingOnly = true })
	tr := newTestTransport(srv.URL(), func(o *Options) {
		o.Transports = []string{constant.TransportWebSocket, constant.TransportPolling}
	})
	defer tr.Disconnect()

	messages := collect(tr, constant.EventReceiveMessage)
	connectAndWait(t, tr, "tok")
	assert.JSONEq(t, `{"token":"tok"}`, srv.ExpectAuth())

	require.NoError(t, tr.Emit(constant.EventSendMessage, map[string]string{"chat_id": "c1", "content": "hi"}))
	assert.JSONEq(t, `["sendMessage",{"chat_id":"c1","content":"hi"}]`, srv.Expect()[2:])

	srv.Push(`42["receiveMessage",{"id":"m9"}]`)
	assert.JSONEq(t, `{"id":"m9"}`, string(next(t, messages)[0]))

	srv.Push("2")
	assert.Equal(t, "3", srv.Expect())
}

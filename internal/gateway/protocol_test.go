package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnginePacket(t *testing.T) {
	p, err := DecodeEnginePacket([]byte(`0{"sid":"lv_VI97HAXpY6yYWAAAC","upgrades":["websocket"],"pingInterval":25000,"pingTimeout":5000,"maxPayload":1000000}`))
	require.NoError(t, err)
	assert.Equal(t, EIOOpen, p.Type)

	var open OpenPacket
	require.NoError(t, Decode(p.Data, &open))
	assert.Equal(t, "lv_VI97HAXpY6yYWAAAC", open.Sid)
	assert.Equal(t, []string{"websocket"}, open.Upgrades)
	assert.Equal(t, 30*time.Second, open.Heartbeat())

	_, err = DecodeEnginePacket(nil)
	assert.Error(t, err)
	_, err = DecodeEnginePacket([]byte("9"))
	assert.Error(t, err)
}

func TestOpenPacket_HeartbeatDefaults(t *testing.T) {
	var open OpenPacket
	assert.Equal(t, DefaultPingInterval+DefaultPingTimeout, open.Heartbeat())
}

func TestPayload(t *testing.T) {
	payload := []byte("2\x1e42[\"a\"]\x1e\x1e6")
	parts := SplitPayload(payload)
	require.Len(t, parts, 3)
	assert.Equal(t, "2", string(parts[0]))
	assert.Equal(t, `42["a"]`, string(parts[1]))
	assert.Equal(t, "6", string(parts[2]))

	assert.Nil(t, SplitPayload(nil))
	assert.Equal(t, "3\x1e6", string(JoinPayload([][]byte{[]byte("3"), []byte("6")})))
}

func TestDecodeSocketPacket(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		typ       byte
		namespace string
		ackId     int
		data      string
		wantErr   bool
	}{
		{name: "connect ack", in: `0{"sid":"abc"}`, typ: SIOConnect, namespace: "/", ackId: -1, data: `{"sid":"abc"}`},
		{name: "event", in: `2["receiveMessage",{"id":1}]`, typ: SIOEvent, namespace: "/", ackId: -1, data: `["receiveMessage",{"id":1}]`},
		{name: "event with ack id", in: `212["ev"]`, typ: SIOEvent, namespace: "/", ackId: 12, data: `["ev"]`},
		{name: "namespaced event", in: `2/admin,["ev","x-y"]`, typ: SIOEvent, namespace: "/admin", ackId: -1, data: `["ev","x-y"]`},
		{name: "disconnect", in: `1`, typ: SIODisconnect, namespace: "/", ackId: -1},
		{name: "connect error", in: `4{"message":"Not authorized"}`, typ: SIOConnectError, namespace: "/", ackId: -1, data: `{"message":"Not authorized"}`},
		{name: "binary event", in: `51-["ev",{"_placeholder":true,"num":0}]`, wantErr: true},
		{name: "bad json", in: `2["ev"`, wantErr: true},
		{name: "unknown type", in: `9`, wantErr: true},
		{name: "empty", in: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeSocketPacket([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.namespace, p.Namespace)
			assert.Equal(t, tt.ackId, p.AckId)
			assert.Equal(t, tt.data, string(p.Data))
		})
	}
}

func TestSocketPacket_Event(t *testing.T) {
	p, err := DecodeSocketPacket([]byte(`2["statusSync",{"u1":{"online":true}},7]`))
	require.NoError(t, err)

	name, args, err := p.Event()
	require.NoError(t, err)
	assert.Equal(t, "statusSync", name)
	require.Len(t, args, 2)
	assert.JSONEq(t, `{"u1":{"online":true}}`, string(args[0]))
	assert.Equal(t, "7", string(args[1]))

	p, err = DecodeSocketPacket([]byte(`2[]`))
	require.NoError(t, err)
	_, _, err = p.Event()
	assert.Error(t, err)

	p, err = DecodeSocketPacket([]byte(`0`))
	require.NoError(t, err)
	_, _, err = p.Event()
	assert.Error(t, err)
}

func TestSocketPacket_ErrorMessage(t *testing.T) {
	p, err := DecodeSocketPacket([]byte(`4{"message":"Not authorized","data":{"code":401}}`))
	require.NoError(t, err)
	assert.Equal(t, "Not authorized", p.ErrorMessage())

	p, err = DecodeSocketPacket([]byte(`4"Invalid namespace"`))
	require.NoError(t, err)
	assert.Equal(t, "Invalid namespace", p.ErrorMessage())
}

func TestEncode(t *testing.T) {
	b, err := EncodeConnect(map[string]string{"token": "t"})
	require.NoError(t, err)
	assert.Equal(t, `40{"token":"t"}`, string(b))

	b, err = EncodeConnect(nil)
	require.NoError(t, err)
	assert.Equal(t, `40`, string(b))

	b, err = EncodeEvent("joinChat", "c1")
	require.NoError(t, err)
	assert.Equal(t, `42["joinChat","c1"]`, string(b))

	b, err = EncodeEvent("requestStatusSync")
	require.NoError(t, err)
	assert.Equal(t, `42["requestStatusSync"]`, string(b))

	assert.Equal(t, "41", string(EncodeDisconnect()))
	assert.Equal(t, "3", string(EncodeEnginePacket(EIOPong, nil)))
}

func TestEndpoint(t *testing.T) {
	u, err := endpoint(DialOptions{URL: "https://chat.example.com"}, "websocket", "")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/socket.io/?EIO=4&transport=websocket", u.String())

	u, err = endpoint(DialOptions{URL: "http://localhost:3000/", Path: "/rt"}, "polling", "abc")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/rt/?EIO=4&sid=abc&transport=polling", u.String())

	_, err = endpoint(DialOptions{URL: "not a url"}, "polling", "")
	assert.Error(t, err)
}

package gateway

import "time"

// Engine.IO v4 packet types
const (
	EIOOpen    byte = '0'
	EIOClose   byte = '1'
	EIOPing    byte = '2'
	EIOPong    byte = '3'
	EIOMessage byte = '4'
	EIOUpgrade byte = '5'
	EIONoop    byte = '6'
)

// Socket.IO v5 packet types
const (
	SIOConnect      byte = '0'
	SIODisconnect   byte = '1'
	SIOEvent        byte = '2'
	SIOAck          byte = '3'
	SIOConnectError byte = '4'
)

// EngineVersion is the Engine.IO protocol revision sent in the handshake query
const EngineVersion = "4"

// PayloadSeparator splits packets inside one long-polling payload
const PayloadSeparator byte = 0x1e

// Manager events dispatched alongside connect, disconnect and connect_error
const (
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnectFailed  = "reconnect_failed"
)

// Disconnect reasons, as reported to disconnect handlers
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

// Timeout constants
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// DefaultPingInterval and DefaultPingTimeout apply until the server open packet says otherwise
	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 20 * time.Second

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 1 << 20

	// WriteChannelSize bounds queued outbound packets per connection
	WriteChannelSize = 256

	// DispatchQueueSize bounds undelivered inbound events per socket
	DispatchQueueSize = 1024
)

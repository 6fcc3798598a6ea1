package constant

import "time"

// Auth strategies
const (
	AuthStrategyToken  = "token"  // Bearer token in Authorization header
	AuthStrategyCookie = "cookie" // HttpOnly cookie owned by the server
)

// Token storage backends
const (
	StorageLocal   = "local"
	StorageSession = "session"
	StorageMemory  = "memory"
	StorageCookie  = "cookie"
)

// TokenKey is the fixed key the token is stored under in every backend
const TokenKey = "token"

// Run modes
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// DevFallbackURL is used for the API and socket only outside production
const DevFallbackURL = "http://localhost:3000"

// Message types
const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
	MsgTypeFile  = "file"
	MsgTypeAudio = "audio"
	MsgTypeVideo = "video"
)

// Mute durations
const (
	Mute8Hours = "8h"
	Mute1Week  = "1w"
	MuteAlways = "always"
	Unmute     = ""
)

// Outbound realtime events
const (
	EventJoinChat          = "joinChat"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventMarkAsRead        = "markAsRead"
	EventRequestStatusSync = "requestStatusSync"
)

// Inbound realtime events
const (
	EventReceiveMessage    = "receiveMessage"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserStatusChanged = "userStatusChanged"
	EventStatusSync        = "statusSync"
)

// Connection lifecycle events
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// Transport names
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Client id generators
const (
	IdGeneratorTime      = "time"
	IdGeneratorUUID      = "uuid"
	IdGeneratorSonyflake = "sonyflake"
)

const (
	// TypingIdleTimeout is the input inactivity after which stopTyping is emitted
	TypingIdleTimeout = 3 * time.Second

	// MinSearchTermLength is the minimum user search term length
	MinSearchTermLength = 3

	// MinPasswordLength is the minimum password length accepted before login/register
	MinPasswordLength = 6

	// MinNameLength is the minimum display name length accepted on register
	MinNameLength = 2
)

// Display fallbacks used by the conversation normalizer
const (
	DefaultParticipantName  = "User"
	DefaultGroupName        = "Group"
	DefaultConversationName = "Conversation"
)

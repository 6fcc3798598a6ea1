package gateway

import "github.com/mbeoliero/nexo-chat/pkg/errcode"

// Gateway errors
var (
	ErrConnClosed       = errcode.ErrConnClosed
	ErrWriteChannelFull = errcode.ErrWriteChannelFull
	ErrInvalidProtocol  = errcode.ErrInvalidProtocol
	ErrNotConnected     = errcode.ErrNotConnected
	ErrConnectRefused   = errcode.ErrConnectRefused
	ErrServerDisconnect = errcode.New(3006, ReasonServerDisconnect)
	ErrPingTimeout      = errcode.New(3007, ReasonPingTimeout)
	ErrNoTransport      = errcode.ErrInvalidParam.WithMsg("no usable transport configured")
	ErrPanic            = errcode.New(3999, "panic error")
)

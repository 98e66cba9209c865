package link

import "github.com/danmuck/gforcelink/internal/protocol"

// Transport is the outbound half of the physical connection. Inbound data
// is pushed into a Link through OnResponseData, OnNotificationData and
// OnDisconnected.
type Transport interface {
	// WriteCommand writes one wire fragment to the command characteristic.
	WriteCommand(b []byte) error
	// MTU returns the negotiated maximum write size, or 0 when unknown.
	MTU() int
}

// Subscriber is implemented by transports that must be told to start or
// stop delivering a channel.
type Subscriber interface {
	Subscribe(ch protocol.Channel) error
	Unsubscribe(ch protocol.Channel) error
}

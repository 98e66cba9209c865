package protocol

import "fmt"

// PartialMarker is the first byte of every chained fragment, on both channels.
const PartialMarker byte = 0xFF

// Channel names one logical characteristic of the link.
type Channel int

const (
	ChannelSimpleData Channel = iota
	ChannelCommand
	ChannelNotify
	ChannelOADIdentify
	ChannelOADBlock
	ChannelOADFast
)

func (c Channel) String() string {
	switch c {
	case ChannelSimpleData:
		return "simple_data"
	case ChannelCommand:
		return "command"
	case ChannelNotify:
		return "notify"
	case ChannelOADIdentify:
		return "oad_identify"
	case ChannelOADBlock:
		return "oad_block"
	case ChannelOADFast:
		return "oad_fast"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Status is the first byte of a response message. StatusTimeout is also
// synthesized locally when no response arrives in time.
type Status byte

const (
	StatusSuccess    Status = 0x00
	StatusNotSupport Status = 0x01
	StatusBadParam   Status = 0x02
	StatusFailed     Status = 0x03
	StatusTimeout    Status = 0x04

	// StatusDisconnected never appears on the wire; it completes commands
	// abandoned by a torn-down link.
	StatusDisconnected Status = 0xFE
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotSupport:
		return "not_support"
	case StatusBadParam:
		return "bad_param"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(0x%02x)", byte(s))
	}
}

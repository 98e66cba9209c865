package protocol

import "errors"

var (
	ErrBadParam     = errors.New("protocol: bad parameter")
	ErrBadState     = errors.New("protocol: bad state")
	ErrDeviceBusy   = errors.New("protocol: device busy")
	ErrTimeout      = errors.New("protocol: command timeout")
	ErrTransport    = errors.New("protocol: transport failure")
	ErrDisconnected = errors.New("protocol: disconnected")
)

// RetCode is the numeric result reported to tools that expect the legacy
// return codes.
type RetCode int

const (
	RetSuccess    RetCode = 0
	RetError      RetCode = 1
	RetBadParam   RetCode = 2
	RetBadState   RetCode = 3
	RetNotSupport RetCode = 4
	RetScanBusy   RetCode = 5
	RetNoResource RetCode = 6
	RetTimeout    RetCode = 7
	RetDeviceBusy RetCode = 8
	RetNotReady   RetCode = 9
)

// RetCodeOf maps err onto a RetCode. Unknown errors map to RetError.
func RetCodeOf(err error) RetCode {
	switch {
	case err == nil:
		return RetSuccess
	case errors.Is(err, ErrBadParam):
		return RetBadParam
	case errors.Is(err, ErrBadState), errors.Is(err, ErrDisconnected):
		return RetBadState
	case errors.Is(err, ErrDeviceBusy):
		return RetDeviceBusy
	case errors.Is(err, ErrTimeout):
		return RetTimeout
	default:
		return RetError
	}
}

func (c RetCode) String() string {
	switch c {
	case RetSuccess:
		return "success"
	case RetError:
		return "error"
	case RetBadParam:
		return "bad_param"
	case RetBadState:
		return "bad_state"
	case RetNotSupport:
		return "not_support"
	case RetScanBusy:
		return "scan_busy"
	case RetNoResource:
		return "no_resource"
	case RetTimeout:
		return "timeout"
	case RetDeviceBusy:
		return "device_busy"
	case RetNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

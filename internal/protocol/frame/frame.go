package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/gforcelink/internal/protocol"
)

const (
	// ChainHeaderLen is the marker byte plus the sequence index byte.
	ChainHeaderLen = 2
	// MaxFragments is the number of distinct one-byte sequence indices.
	MaxFragments = 256
	// MinChainMTU is the smallest MTU that still carries one content byte.
	MinChainMTU = ChainHeaderLen + 1
)

var (
	ErrInvalidMTU         = errors.New("frame: mtu too small for chained fragments")
	ErrTooManyFragments   = errors.New("frame: message needs more than 256 fragments")
	ErrFragmentOutOfOrder = errors.New("frame: fragment index out of order")
	ErrReassemblyOverflow = errors.New("frame: reassembly buffer overflow")
)

// Limits constrains reassembly memory use.
type Limits struct {
	MaxMessageBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes: MaxFragments * 512,
	}
}

// IsChained reports whether b is framed as a chained fragment.
func IsChained(b []byte) bool {
	return len(b) >= ChainHeaderLen && b[0] == protocol.PartialMarker
}

// FragmentCount returns how many wire fragments a message of msgLen bytes
// needs at the given mtu.
func FragmentCount(msgLen, mtu int) (int, error) {
	if msgLen <= mtu {
		return 1, nil
	}
	if mtu < MinChainMTU {
		return 0, fmt.Errorf("%w: mtu=%d", ErrInvalidMTU, mtu)
	}
	contentLen := mtu - ChainHeaderLen
	count := (msgLen + contentLen - 1) / contentLen
	if count > MaxFragments {
		return 0, fmt.Errorf("%w: len=%d mtu=%d count=%d", ErrTooManyFragments, msgLen, mtu, count)
	}
	return count, nil
}

// Fragment splits msg into wire fragments no larger than mtu. A message that
// fits is returned as a single unframed fragment. Longer messages become a
// chain of [marker, index, content...] fragments whose indices count down to
// zero; their content, in emitted order, is msg.
func Fragment(msg []byte, mtu int) ([][]byte, error) {
	count, err := FragmentCount(len(msg), mtu)
	if err != nil {
		return nil, err
	}
	if count == 1 {
		single := make([]byte, len(msg))
		copy(single, msg)
		return [][]byte{single}, nil
	}

	contentLen := mtu - ChainHeaderLen
	out := make([][]byte, 0, count)
	start := 0
	for idx := count - 1; idx >= 0; idx-- {
		end := start + contentLen
		if idx == 0 || end > len(msg) {
			end = len(msg)
		}
		buf := make([]byte, 0, ChainHeaderLen+end-start)
		buf = append(buf, protocol.PartialMarker, byte(idx))
		buf = append(buf, msg[start:end]...)
		out = append(out, buf)
		start = end
	}
	return out, nil
}

// WriteFragments fragments msg and hands each fragment to write in order.
// The first write error stops the sequence; fragments already written are
// not recalled.
func WriteFragments(msg []byte, mtu int, write func([]byte) error) (int, error) {
	frags, err := Fragment(msg, mtu)
	if err != nil {
		return 0, err
	}
	for i, f := range frags {
		if err := write(f); err != nil {
			return i, fmt.Errorf("write fragment %d/%d: %w", i+1, len(frags), err)
		}
	}
	return len(frags), nil
}

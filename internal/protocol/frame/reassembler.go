package frame

import (
	"fmt"

	"github.com/danmuck/gforcelink/internal/protocol"
)

// AnomalyPolicy selects what happens to an open chain when a fragment
// arrives with an index that is not lower than the last one seen.
type AnomalyPolicy int

const (
	// AnomalyKeepChain drops the offending fragment and keeps the chain open.
	// A later index 0 still closes the chain, possibly with missing content.
	AnomalyKeepChain AnomalyPolicy = iota
	// AnomalyDiscardChain drops the offending fragment and everything
	// accumulated so far.
	AnomalyDiscardChain
)

func (p AnomalyPolicy) String() string {
	switch p {
	case AnomalyKeepChain:
		return "keep"
	case AnomalyDiscardChain:
		return "discard"
	default:
		return fmt.Sprintf("anomaly_policy(%d)", int(p))
	}
}

// ParseAnomalyPolicy accepts the names produced by String.
func ParseAnomalyPolicy(raw string) (AnomalyPolicy, error) {
	switch raw {
	case "", "keep":
		return AnomalyKeepChain, nil
	case "discard":
		return AnomalyDiscardChain, nil
	default:
		return AnomalyKeepChain, fmt.Errorf("frame: unknown anomaly policy %q", raw)
	}
}

const noIndex = -1

// Reassembler accumulates chained fragments of one channel.
// It is not safe for concurrent use.
type Reassembler struct {
	limits Limits
	policy AnomalyPolicy
	last   int
	buf    []byte
}

func NewReassembler(limits Limits, policy AnomalyPolicy) *Reassembler {
	return &Reassembler{
		limits: limits,
		policy: policy,
		last:   noIndex,
	}
}

// Feed consumes one raw inbound buffer. It returns a complete message when
// raw is unframed or closes a chain, and nil while a chain is still open.
// Buffers shorter than two bytes are ignored. A non-nil error reports a
// protocol anomaly; the returned message is nil in that case.
func (r *Reassembler) Feed(raw []byte) ([]byte, error) {
	if len(raw) < ChainHeaderLen {
		return nil, nil
	}
	if raw[0] != protocol.PartialMarker {
		msg := make([]byte, len(raw))
		copy(msg, raw)
		return msg, nil
	}

	idx := int(raw[1])
	if r.last != noIndex && idx >= r.last {
		err := fmt.Errorf("%w: last=%d got=%d", ErrFragmentOutOfOrder, r.last, idx)
		if r.policy == AnomalyDiscardChain {
			r.Reset()
		}
		return nil, err
	}

	content := raw[ChainHeaderLen:]
	if r.limits.MaxMessageBytes > 0 && len(r.buf)+len(content) > r.limits.MaxMessageBytes {
		size := len(r.buf) + len(content)
		r.Reset()
		return nil, fmt.Errorf("%w: size=%d max=%d", ErrReassemblyOverflow, size, r.limits.MaxMessageBytes)
	}
	r.buf = append(r.buf, content...)
	r.last = idx

	if idx != 0 {
		return nil, nil
	}
	msg := r.buf
	r.buf = nil
	r.last = noIndex
	if msg == nil {
		msg = []byte{}
	}
	return msg, nil
}

// Reset drops any partially accumulated chain.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.last = noIndex
}

// InProgress reports whether a chain is open.
func (r *Reassembler) InProgress() bool {
	return r.last != noIndex
}

// Buffered returns the number of content bytes held for the open chain.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

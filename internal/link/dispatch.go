package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/gforcelink/internal/observability"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/protocol/frame"
	"github.com/danmuck/gforcelink/internal/protocol/session"
)

// Request is one outbound command. Message[0] is the opcode that the
// response will be correlated on.
type Request struct {
	Channel         protocol.Channel
	Message         []byte
	ExpectsResponse bool
	Done            session.Completion
	// Timeout bounds the wait for a response. Zero uses the link default.
	Timeout time.Duration
}

// Dispatch fragments and sends req. When req expects a response and has a
// completion, the command is registered first; a second command with the
// same opcode fails with protocol.ErrDeviceBusy until the first completes.
// A registered command whose send fails is removed again and its
// completion is never invoked.
func (l *Link) Dispatch(req Request) error {
	if l.Closed() {
		return fmt.Errorf("%w: link closed", protocol.ErrBadState)
	}
	mtu := l.tr.MTU()
	if mtu <= 0 {
		return fmt.Errorf("%w: mtu not assigned", protocol.ErrBadState)
	}
	if req.Channel != protocol.ChannelCommand {
		return fmt.Errorf("%w: unsupported channel %s", protocol.ErrBadParam, req.Channel)
	}
	if len(req.Message) == 0 {
		return fmt.Errorf("%w: empty message", protocol.ErrBadParam)
	}
	frags, err := frame.Fragment(req.Message, mtu)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrBadParam, err)
	}

	opcode := req.Message[0]
	label := opcodeLabel(opcode)
	tracked := req.ExpectsResponse && req.Done != nil
	var ticket session.Ticket
	if tracked {
		timeout := req.Timeout
		if timeout <= 0 {
			timeout = l.cfg.Session.DefaultTimeout
		}
		ticket, err = l.table.Register(opcode, timeout, req.Done)
		if err != nil {
			if errors.Is(err, protocol.ErrDeviceBusy) {
				observability.RecordDispatch(label, "busy", 0)
				l.log.Debug().Str("opcode", label).Msg("dispatch rejected: opcode outstanding")
			}
			return err
		}
		observability.AddPending(1)
	}

	sent, err := l.writeAll(frags)
	if err != nil {
		if tracked && l.table.Cancel(ticket) {
			observability.AddPending(-1)
		}
		observability.RecordDispatch(label, "transport_error", sent)
		l.log.Warn().Err(err).Str("opcode", label).Int("sent", sent).Int("fragments", len(frags)).
			Msg("dispatch write failed")
		return fmt.Errorf("%w: opcode=%s: %w", protocol.ErrTransport, label, err)
	}
	observability.RecordDispatch(label, "ok", sent)
	l.log.Debug().Str("opcode", label).Int("len", len(req.Message)).Int("fragments", sent).
		Bool("tracked", tracked).Msg("command sent")
	return nil
}

// writeAll writes one message's fragments back to back so that chains from
// concurrent dispatches never interleave.
func (l *Link) writeAll(frags [][]byte) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	for i, f := range frags {
		if err := l.tr.WriteCommand(f); err != nil {
			return i, fmt.Errorf("fragment %d/%d: %w", i+1, len(frags), err)
		}
	}
	return len(frags), nil
}

// Send dispatches msg on the command channel without waiting for a response.
func (l *Link) Send(msg []byte) error {
	return l.Dispatch(Request{Channel: protocol.ChannelCommand, Message: msg})
}

// Call sends opcode followed by body and waits for the correlated result.
// The returned error is the dispatch error, a local outcome (timeout,
// disconnect) or ctx's error. A device status other than success is not an
// error; inspect Result.Status. Cancelling ctx abandons the wait only: the
// command stays outstanding until it is answered or times out.
func (l *Link) Call(ctx context.Context, opcode byte, body []byte, timeout time.Duration) (session.Result, error) {
	msg := make([]byte, 0, 1+len(body))
	msg = append(msg, opcode)
	msg = append(msg, body...)

	ch := make(chan session.Result, 1)
	err := l.Dispatch(Request{
		Channel:         protocol.ChannelCommand,
		Message:         msg,
		ExpectsResponse: true,
		Done:            func(r session.Result) { ch <- r },
		Timeout:         timeout,
	})
	if err != nil {
		return session.Result{}, err
	}
	select {
	case r := <-ch:
		return r, r.Err
	case <-ctx.Done():
		return session.Result{}, ctx.Err()
	}
}

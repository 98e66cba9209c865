package link

import (
	"errors"
	"fmt"

	"github.com/danmuck/gforcelink/internal/observability"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/protocol/frame"
)

// OnResponseData consumes one raw buffer from the command characteristic.
// A complete response is [status, opcode, payload...]; it completes the
// command outstanding for opcode, if any.
func (l *Link) OnResponseData(raw []byte) {
	if l.Closed() {
		return
	}
	l.respMu.Lock()
	msg, err := l.resp.Feed(raw)
	l.respMu.Unlock()
	if err != nil {
		l.anomaly(protocol.ChannelCommand, err)
		return
	}
	if msg == nil {
		return
	}
	if len(msg) < 2 {
		observability.RecordAnomaly(protocol.ChannelCommand.String(), "short")
		l.log.Debug().Int("len", len(msg)).Msg("response too short, dropped")
		return
	}
	observability.RecordInbound(protocol.ChannelCommand.String())

	status := protocol.Status(msg[0])
	opcode := msg[1]
	if !l.table.Resolve(opcode, status, msg[2:]) {
		observability.RecordAnomaly(protocol.ChannelCommand.String(), "unmatched")
		l.log.Warn().Str("opcode", opcodeLabel(opcode)).Str("status", status.String()).
			Msg("response without outstanding command, dropped")
	}
}

// OnNotificationData consumes one raw buffer from the notification
// characteristic and hands each complete message to the current sink. The
// sink runs on the caller's goroutine.
func (l *Link) OnNotificationData(raw []byte) {
	if l.Closed() {
		return
	}
	l.ntfMu.Lock()
	msg, err := l.ntf.Feed(raw)
	l.ntfMu.Unlock()
	if err != nil {
		l.anomaly(protocol.ChannelNotify, err)
		return
	}
	if len(msg) < 1 {
		return
	}
	observability.RecordInbound(protocol.ChannelNotify.String())

	l.sinkMu.RLock()
	sink := l.sink
	l.sinkMu.RUnlock()
	if sink == nil {
		l.log.Trace().Int("len", len(msg)).Msg("notification without sink, dropped")
		return
	}
	sink(msg)
}

// SetNotificationSink installs sink, replacing any previous one.
func (l *Link) SetNotificationSink(sink NotificationSink) {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	l.sink = sink
}

func (l *Link) ClearNotificationSink() {
	l.SetNotificationSink(nil)
}

// StartNotifications installs sink and asks the transport to deliver the
// notification channel. On failure the sink is removed again.
func (l *Link) StartNotifications(sink NotificationSink) error {
	if l.Closed() {
		return fmt.Errorf("%w: link closed", protocol.ErrBadState)
	}
	l.SetNotificationSink(sink)
	sub, ok := l.tr.(Subscriber)
	if !ok {
		return nil
	}
	if err := sub.Subscribe(protocol.ChannelNotify); err != nil {
		l.ClearNotificationSink()
		return fmt.Errorf("%w: subscribe: %w", protocol.ErrBadState, err)
	}
	return nil
}

// StopNotifications asks the transport to stop the notification channel
// and removes the sink.
func (l *Link) StopNotifications() error {
	defer l.ClearNotificationSink()
	sub, ok := l.tr.(Subscriber)
	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(protocol.ChannelNotify); err != nil {
		return fmt.Errorf("%w: unsubscribe: %w", protocol.ErrBadState, err)
	}
	return nil
}

func (l *Link) anomaly(ch protocol.Channel, err error) {
	reason := "other"
	switch {
	case errors.Is(err, frame.ErrFragmentOutOfOrder):
		reason = "out_of_order"
	case errors.Is(err, frame.ErrReassemblyOverflow):
		reason = "overflow"
	}
	observability.RecordAnomaly(ch.String(), reason)
	l.log.Warn().Err(err).Str("channel", ch.String()).Msg("fragment anomaly")
}

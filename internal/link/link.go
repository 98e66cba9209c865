package link

import (
	"fmt"
	"sync"
	"time"

	"github.com/glycerine/idem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/gforcelink/internal/observability"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/protocol/frame"
	"github.com/danmuck/gforcelink/internal/protocol/session"
)

// Config defines one link's behavior.
type Config struct {
	Session session.Config
	// Clock drives command deadlines. Nil uses the system clock.
	Clock session.Clock
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
	}
}

// NotificationSink receives complete notification messages.
type NotificationSink func(msg []byte)

// Link is the protocol state of one physical connection: its correlation
// table, one reassembler per inbound channel, and the notification sink.
type Link struct {
	id  string
	cfg Config
	tr  Transport
	log zerolog.Logger

	table *session.Table
	halt  *idem.Halter

	teardownOnce sync.Once
	writeMu      sync.Mutex

	respMu sync.Mutex
	resp   *frame.Reassembler
	ntfMu  sync.Mutex
	ntf    *frame.Reassembler

	sinkMu sync.RWMutex
	sink   NotificationSink
}

func New(tr Transport, cfg Config) *Link {
	cfg.Session = cfg.Session.WithDefaults()
	id := uuid.NewString()
	l := &Link{
		id:   id,
		cfg:  cfg,
		tr:   tr,
		log:  observability.ComponentLogger(id, "link"),
		halt: idem.NewHalterNamed(fmt.Sprintf("Link(%s)", id)),
		resp: frame.NewReassembler(cfg.Session.Limits(), cfg.Session.AnomalyPolicy),
		ntf:  frame.NewReassembler(cfg.Session.Limits(), cfg.Session.AnomalyPolicy),
	}
	l.table = session.NewTable(cfg.Clock, l.observeCompletion)
	l.log.Debug().
		Dur("default_timeout", cfg.Session.DefaultTimeout).
		Str("anomaly_policy", cfg.Session.AnomalyPolicy.String()).
		Msg("link created")
	return l
}

// ID is the random identity used to tag this link's logs.
func (l *Link) ID() string {
	return l.id
}

// Closed reports whether the link has been torn down.
func (l *Link) Closed() bool {
	return l.halt.ReqStop.IsClosed()
}

// Done is closed once teardown has completed.
func (l *Link) Done() <-chan struct{} {
	return l.halt.Done.Chan
}

// Pending lists outstanding commands by ascending deadline.
func (l *Link) Pending() []session.Pending {
	return l.table.Snapshot()
}

// OnDisconnected is called by the transport when the connection drops.
func (l *Link) OnDisconnected() {
	l.teardown("transport disconnected")
}

// Close tears the link down. It stops notifications on transports that
// support it, then completes every outstanding command as disconnected.
func (l *Link) Close() error {
	var err error
	if !l.Closed() {
		if sub, ok := l.tr.(Subscriber); ok {
			err = sub.Unsubscribe(protocol.ChannelNotify)
		}
	}
	l.teardown("closed")
	return err
}

func (l *Link) teardown(reason string) {
	l.teardownOnce.Do(func() {
		l.halt.ReqStop.Close()
		n := l.table.Abort(protocol.StatusDisconnected, protocol.ErrDisconnected)

		l.respMu.Lock()
		l.resp.Reset()
		l.respMu.Unlock()
		l.ntfMu.Lock()
		l.ntf.Reset()
		l.ntfMu.Unlock()
		l.ClearNotificationSink()

		l.halt.Done.Close()
		l.log.Info().Str("reason", reason).Int("abandoned", n).Msg("link torn down")
	})
}

func (l *Link) observeCompletion(p session.Pending, r session.Result) {
	elapsed := l.now().Sub(p.IssuedAt)
	observability.RecordCompletion(opcodeLabel(p.Opcode), r.Status.String(), elapsed)
	observability.AddPending(-1)
	ev := l.log.Debug()
	if r.Err != nil {
		ev = l.log.Warn().Err(r.Err)
	}
	ev.Str("opcode", opcodeLabel(p.Opcode)).
		Str("status", r.Status.String()).
		Int("payload_len", len(r.Payload)).
		Dur("elapsed", elapsed).
		Msg("command complete")
}

func (l *Link) now() time.Time {
	if l.cfg.Clock != nil {
		return l.cfg.Clock.Now()
	}
	return time.Now()
}

func opcodeLabel(op byte) string {
	return fmt.Sprintf("0x%02x", op)
}

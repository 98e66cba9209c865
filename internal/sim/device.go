package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glycerine/idem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/gforcelink/internal/observability"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/protocol/frame"
)

var (
	ErrClosed       = errors.New("sim: device closed")
	ErrNotAttached  = errors.New("sim: no link attached")
	ErrWriteTooLong = errors.New("sim: write exceeds mtu")
	ErrQueueFull    = errors.New("sim: delivery queue full")
)

// Inbound is the receiving side of the physical connection; *link.Link
// satisfies it.
type Inbound interface {
	OnResponseData(raw []byte)
	OnNotificationData(raw []byte)
	OnDisconnected()
}

// Handler answers one command body (the message after its opcode).
type Handler func(body []byte) (protocol.Status, []byte)

type Config struct {
	MTU int
	// ResponseDelay is applied before each response is queued.
	ResponseDelay time.Duration
	// QueueDepth bounds buffered inbound deliveries.
	QueueDepth int
}

func DefaultConfig() Config {
	return Config{
		MTU:        20,
		QueueDepth: 256,
	}
}

type delivery struct {
	ch         protocol.Channel
	raw        []byte
	disconnect bool
}

// Device is a simulated peripheral. Commands written to it are reassembled,
// dispatched to handlers by opcode, and answered on the response channel.
// All deliveries to the attached link run on one goroutine, in order.
type Device struct {
	cfg    Config
	serial string
	log    zerolog.Logger
	halt   *idem.Halter
	out    chan delivery

	mu         sync.Mutex
	in         Inbound
	asm        *frame.Reassembler
	handlers   map[byte]Handler
	muted      map[byte]bool
	subscribed bool
	writeErr   error
	failAfter  int
	writes     [][]byte
	commands   [][]byte
}

func NewDevice(cfg Config) *Device {
	def := DefaultConfig()
	if cfg.MTU <= 0 {
		cfg.MTU = def.MTU
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	serial := uuid.NewString()
	return &Device{
		cfg:      cfg,
		serial:   serial,
		log:      observability.ComponentLogger(serial, "sim"),
		halt:     idem.NewHalterNamed(fmt.Sprintf("SimDevice(%s)", serial)),
		out:      make(chan delivery, cfg.QueueDepth),
		asm:      frame.NewReassembler(frame.DefaultLimits(), frame.AnomalyDiscardChain),
		handlers: make(map[byte]Handler),
		muted:    make(map[byte]bool),
	}
}

// Serial is the device's random serial number.
func (d *Device) Serial() string {
	return d.serial
}

// Attach connects in and starts the delivery loop.
func (d *Device) Attach(in Inbound) {
	d.mu.Lock()
	d.in = in
	d.mu.Unlock()
	go d.deliverLoop(in)
}

func (d *Device) deliverLoop(in Inbound) {
	defer d.halt.Done.Close()
	for {
		select {
		case <-d.halt.ReqStop.Chan:
			return
		case dv := <-d.out:
			switch {
			case dv.disconnect:
				in.OnDisconnected()
				return
			case dv.ch == protocol.ChannelNotify:
				in.OnNotificationData(dv.raw)
			default:
				in.OnResponseData(dv.raw)
			}
		}
	}
}

// Handle registers h for opcode, replacing any previous handler.
func (d *Device) Handle(opcode byte, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[opcode] = h
}

// Mute makes the device swallow commands with opcode without answering.
func (d *Device) Mute(opcode byte, muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if muted {
		d.muted[opcode] = true
		return
	}
	delete(d.muted, opcode)
}

// FailWrites lets the next n writes succeed and fails every later one with
// err. A nil err clears the failure.
func (d *Device) FailWrites(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAfter = n
	d.writeErr = err
}

// Writes returns a copy of every fragment written to the device.
func (d *Device) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.writes))
	copy(out, d.writes)
	return out
}

// Commands returns every reassembled command message the device received.
func (d *Device) Commands() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.commands))
	copy(out, d.commands)
	return out
}

func (d *Device) MTU() int {
	if d.halt.ReqStop.IsClosed() {
		return 0
	}
	return d.cfg.MTU
}

// WriteCommand receives one command fragment from the link.
func (d *Device) WriteCommand(b []byte) error {
	if d.halt.ReqStop.IsClosed() {
		return ErrClosed
	}
	if len(b) > d.cfg.MTU {
		return fmt.Errorf("%w: len=%d mtu=%d", ErrWriteTooLong, len(b), d.cfg.MTU)
	}

	d.mu.Lock()
	if d.writeErr != nil {
		if d.failAfter <= 0 {
			err := d.writeErr
			d.mu.Unlock()
			return err
		}
		d.failAfter--
	}
	frag := make([]byte, len(b))
	copy(frag, b)
	d.writes = append(d.writes, frag)
	msg := frag
	if frame.IsChained(frag) {
		var err error
		msg, err = d.asm.Feed(frag)
		if err != nil || msg == nil {
			d.mu.Unlock()
			if err != nil {
				d.log.Warn().Err(err).Msg("command fragment dropped")
			}
			return nil
		}
	}
	d.commands = append(d.commands, msg)
	if len(msg) == 0 {
		d.mu.Unlock()
		return nil
	}
	opcode := msg[0]
	h, ok := d.handlers[opcode]
	muted := d.muted[opcode]
	d.mu.Unlock()

	if muted {
		d.log.Debug().Str("opcode", fmt.Sprintf("0x%02x", opcode)).Msg("muted command swallowed")
		return nil
	}
	status, payload := protocol.StatusNotSupport, []byte(nil)
	if ok {
		status, payload = h(msg[1:])
	}
	resp := make([]byte, 0, 2+len(payload))
	resp = append(resp, byte(status), opcode)
	resp = append(resp, payload...)
	return d.respond(resp)
}

// respond queues resp for the link. A response that does not fit the
// queue is lost like a dropped radio packet; the command then times out.
func (d *Device) respond(resp []byte) error {
	if d.cfg.ResponseDelay <= 0 {
		err := d.enqueue(protocol.ChannelCommand, resp)
		if errors.Is(err, ErrQueueFull) {
			d.log.Warn().Int("len", len(resp)).Msg("response dropped, delivery queue full")
			return nil
		}
		return err
	}
	go func() {
		t := time.NewTimer(d.cfg.ResponseDelay)
		defer t.Stop()
		select {
		case <-d.halt.ReqStop.Chan:
		case <-t.C:
			if err := d.enqueue(protocol.ChannelCommand, resp); err != nil {
				d.log.Debug().Err(err).Msg("delayed response dropped")
			}
		}
	}()
	return nil
}

// Emit sends msg on the notification channel when it is subscribed.
func (d *Device) Emit(msg []byte) error {
	d.mu.Lock()
	subscribed := d.subscribed
	d.mu.Unlock()
	if !subscribed {
		return nil
	}
	return d.enqueue(protocol.ChannelNotify, msg)
}

// EmitRaw queues raw wire buffers on ch without fragmenting them.
func (d *Device) EmitRaw(ch protocol.Channel, raws ...[]byte) error {
	for _, raw := range raws {
		if err := d.push(delivery{ch: ch, raw: raw}, false); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) enqueue(ch protocol.Channel, msg []byte) error {
	frags, err := frame.Fragment(msg, d.cfg.MTU)
	if err != nil {
		return err
	}
	return d.EmitRaw(ch, frags...)
}

// push hands dv to the delivery loop. Unless wait is set it fails with
// ErrQueueFull instead of blocking, since callers may be running under the
// link's write lock while the loop is busy inside a completion.
func (d *Device) push(dv delivery, wait bool) error {
	d.mu.Lock()
	attached := d.in != nil
	d.mu.Unlock()
	if !attached {
		return ErrNotAttached
	}
	if d.halt.ReqStop.IsClosed() {
		return ErrClosed
	}
	if !wait {
		select {
		case d.out <- dv:
			return nil
		default:
			return fmt.Errorf("%w: depth=%d", ErrQueueFull, cap(d.out))
		}
	}
	select {
	case <-d.halt.ReqStop.Chan:
		return ErrClosed
	case d.out <- dv:
		return nil
	}
}

func (d *Device) Subscribe(ch protocol.Channel) error {
	if ch != protocol.ChannelNotify {
		return fmt.Errorf("%w: channel %s", protocol.ErrBadParam, ch)
	}
	if d.halt.ReqStop.IsClosed() {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed = true
	return nil
}

func (d *Device) Unsubscribe(ch protocol.Channel) error {
	if ch != protocol.ChannelNotify {
		return fmt.Errorf("%w: channel %s", protocol.ErrBadParam, ch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed = false
	return nil
}

func (d *Device) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribed
}

// Disconnect queues a disconnect after pending deliveries and stops the
// device once the link has been told.
func (d *Device) Disconnect() {
	if err := d.push(delivery{disconnect: true}, true); err != nil {
		d.halt.ReqStop.Close()
		return
	}
	<-d.halt.Done.Chan
	d.halt.ReqStop.Close()
}

// Close stops the device without notifying the link.
func (d *Device) Close() {
	d.halt.ReqStop.Close()
}

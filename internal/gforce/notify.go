package gforce

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	QuaternionMsgLen = 17
	EMGRawMsgLen     = 129
	// EMGSamplesPerPacket is how many times each channel repeats in one
	// raw EMG packet at the default configuration.
	EMGSamplesPerPacket = 16
)

// Quaternion is the W, X, Y, Z rotation carried by NtfQuatFloatData.
type Quaternion [4]float32

// SplitNotification returns the type byte and body of msg.
func SplitNotification(msg []byte) (NotifType, []byte, error) {
	if len(msg) < 1 {
		return 0, nil, fmt.Errorf("%w: empty notification", ErrMalformedPayload)
	}
	return NotifType(msg[0]), msg[1:], nil
}

func DecodeQuaternion(msg []byte) (Quaternion, error) {
	if len(msg) != QuaternionMsgLen || NotifType(msg[0]) != NtfQuatFloatData {
		return Quaternion{}, fmt.Errorf("%w: quaternion len=%d", ErrMalformedPayload, len(msg))
	}
	var q Quaternion
	for i := range q {
		q[i] = math.Float32frombits(binary.LittleEndian.Uint32(msg[1+4*i:]))
	}
	return q, nil
}

// EncodeQuaternion is the wire form DecodeQuaternion reads.
func EncodeQuaternion(q Quaternion) []byte {
	buf := make([]byte, QuaternionMsgLen)
	buf[0] = byte(NtfQuatFloatData)
	for i, v := range q {
		binary.LittleEndian.PutUint32(buf[1+4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEMGRaw unpacks a raw EMG packet. With 8-bit resolution each byte is
// one sample; with 12-bit resolution each little endian pair is one sample.
// Samples cycle through the enabled channels.
func DecodeEMGRaw(msg []byte, resolution uint8) ([]uint16, error) {
	if len(msg) != EMGRawMsgLen || NotifType(msg[0]) != NtfEMGADCData {
		return nil, fmt.Errorf("%w: emg raw len=%d", ErrMalformedPayload, len(msg))
	}
	body := msg[1:]
	switch resolution {
	case 8:
		out := make([]uint16, len(body))
		for i, b := range body {
			out[i] = uint16(b)
		}
		return out, nil
	case 12:
		out := make([]uint16, len(body)/2)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(body[2*i:]) & 0x0FFF
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: resolution=%d", ErrMalformedPayload, resolution)
	}
}

// Rate is one RateMeter window.
type Rate struct {
	SampleRate float64
	ByteRate   float64
	Period     time.Duration
}

// RateMeter estimates stream throughput every Window packets.
type RateMeter struct {
	Window           int
	SamplesPerPacket int

	start   time.Time
	packets int
	bytes   int
}

func NewRateMeter(window, samplesPerPacket int) *RateMeter {
	if window <= 0 {
		window = 100
	}
	return &RateMeter{Window: window, SamplesPerPacket: samplesPerPacket}
}

// Observe counts one packet of n bytes received at now. It reports a Rate
// each time a window fills.
func (m *RateMeter) Observe(n int, now time.Time) (Rate, bool) {
	if m.start.IsZero() {
		m.start = now
	}
	m.packets++
	m.bytes += n
	if m.packets < m.Window {
		return Rate{}, false
	}
	period := now.Sub(m.start)
	r := Rate{Period: period}
	if period > 0 {
		secs := period.Seconds()
		r.SampleRate = float64(m.packets*m.SamplesPerPacket) / secs
		r.ByteRate = float64(m.bytes) / secs
	}
	m.start = now
	m.packets = 0
	m.bytes = 0
	return r, true
}

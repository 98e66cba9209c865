package sim

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/danmuck/gforcelink/internal/gforce"
	"github.com/danmuck/gforcelink/internal/protocol"
)

// Profile is the identity and initial state of a simulated armband.
type Profile struct {
	FirmwareVersion string
	FeatureMap      uint32
	EMG             gforce.EMGRawDataConfig
}

func DefaultProfile() Profile {
	return Profile{
		FirmwareVersion: "2.1.7.3104",
		FeatureMap:      0x0000_07FF,
		EMG: gforce.EMGRawDataConfig{
			SampleRate:  500,
			ChannelMask: 0x00FF,
			DataLen:     128,
			Resolution:  8,
		},
	}
}

// Armband is a Device answering the gForce command catalog and producing
// quaternion and EMG streams while they are switched on.
type Armband struct {
	*Device

	mu      sync.Mutex
	profile Profile
	flags   gforce.DataNotifFlags
	led     bool
	motor   bool
	logLvl  gforce.LogLevel
	seq     uint32
}

func NewArmband(cfg Config, profile Profile) *Armband {
	a := &Armband{
		Device:  NewDevice(cfg),
		profile: profile,
		logLvl:  gforce.LogLevelInfo,
	}
	a.Handle(gforce.CmdGetFWRevision, func([]byte) (protocol.Status, []byte) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return protocol.StatusSuccess, []byte(a.profile.FirmwareVersion)
	})
	a.Handle(gforce.CmdGetFeatureMap, func([]byte) (protocol.Status, []byte) {
		a.mu.Lock()
		defer a.mu.Unlock()
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, a.profile.FeatureMap)
		return protocol.StatusSuccess, buf
	})
	a.Handle(gforce.CmdGetEMGRawDataConfig, func([]byte) (protocol.Status, []byte) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return protocol.StatusSuccess, gforce.EncodeEMGRawDataConfig(a.profile.EMG)
	})
	a.Handle(gforce.CmdSetEMGRawDataConfig, func(body []byte) (protocol.Status, []byte) {
		cfg, err := gforce.DecodeEMGRawDataConfig(body)
		if err != nil || (cfg.Resolution != 8 && cfg.Resolution != 12) {
			return protocol.StatusBadParam, nil
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.profile.EMG = cfg
		return protocol.StatusSuccess, nil
	})
	a.Handle(gforce.CmdSetDataNotifSwitch, func(body []byte) (protocol.Status, []byte) {
		if len(body) != 4 {
			return protocol.StatusBadParam, nil
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.flags = gforce.DataNotifFlags(binary.LittleEndian.Uint32(body))
		return protocol.StatusSuccess, nil
	})
	a.Handle(gforce.CmdLEDControlTest, a.toggle(&a.led))
	a.Handle(gforce.CmdMotorControl, a.toggle(&a.motor))
	a.Handle(gforce.CmdSetLogLevel, func(body []byte) (protocol.Status, []byte) {
		if len(body) != 1 || gforce.LogLevel(body[0]) > gforce.LogLevelNone {
			return protocol.StatusBadParam, nil
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.logLvl = gforce.LogLevel(body[0])
		return protocol.StatusSuccess, nil
	})
	return a
}

func (a *Armband) toggle(field *bool) Handler {
	return func(body []byte) (protocol.Status, []byte) {
		if len(body) != 1 || body[0] > 1 {
			return protocol.StatusBadParam, nil
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		*field = body[0] == 1
		return protocol.StatusSuccess, nil
	}
}

// State reports the switches the link has set.
func (a *Armband) State() (flags gforce.DataNotifFlags, led, motor bool, lvl gforce.LogLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flags, a.led, a.motor, a.logLvl
}

// Tick emits one packet for every enabled stream the armband simulates.
func (a *Armband) Tick() error {
	a.mu.Lock()
	flags := a.flags
	emg := a.profile.EMG
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	if flags.Has(gforce.DNFQuaternion) {
		if err := a.Emit(gforce.EncodeQuaternion(quaternionAt(seq))); err != nil {
			return err
		}
	}
	if flags.Has(gforce.DNFEMGRaw) {
		if err := a.Emit(emgPacket(seq, emg.Resolution)); err != nil {
			return err
		}
	}
	return nil
}

// Run ticks every interval until the device stops.
func (a *Armband) Run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.halt.ReqStop.Chan:
			return
		case <-ticker.C:
			err := a.Tick()
			if errors.Is(err, ErrQueueFull) {
				a.log.Debug().Err(err).Msg("stream packet dropped")
				continue
			}
			if err != nil {
				a.log.Debug().Err(err).Msg("stream tick stopped")
				return
			}
		}
	}
}

func quaternionAt(seq uint32) gforce.Quaternion {
	theta := float64(seq%360) * math.Pi / 180
	half := theta / 2
	return gforce.Quaternion{
		float32(math.Cos(half)),
		0,
		0,
		float32(math.Sin(half)),
	}
}

func emgPacket(seq uint32, resolution uint8) []byte {
	buf := make([]byte, gforce.EMGRawMsgLen)
	buf[0] = byte(gforce.NtfEMGADCData)
	body := buf[1:]
	if resolution == 12 {
		for i := 0; i+1 < len(body); i += 2 {
			binary.LittleEndian.PutUint16(body[i:], uint16((seq*7+uint32(i))&0x0FFF))
		}
		return buf
	}
	for i := range body {
		body[i] = byte(seq + uint32(i))
	}
	return buf
}

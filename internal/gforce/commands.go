package gforce

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

func boolByte(on bool) byte {
	if on {
		return 0x01
	}
	return 0x00
}

// BuildSetDataNotifSwitch encodes flags little endian after the opcode.
func BuildSetDataNotifSwitch(flags DataNotifFlags) []byte {
	buf := make([]byte, 5)
	buf[0] = CmdSetDataNotifSwitch
	binary.LittleEndian.PutUint32(buf[1:], uint32(flags))
	return buf
}

func BuildMotor(on bool) []byte {
	return []byte{CmdMotorControl, boolByte(on)}
}

func BuildLED(on bool) []byte {
	return []byte{CmdLEDControlTest, boolByte(on)}
}

func BuildSetLogLevel(lvl LogLevel) []byte {
	return []byte{CmdSetLogLevel, byte(lvl)}
}

func BuildSetEMGRawDataConfig(cfg EMGRawDataConfig) []byte {
	buf := make([]byte, 7)
	buf[0] = CmdSetEMGRawDataConfig
	binary.LittleEndian.PutUint16(buf[1:3], cfg.SampleRate)
	binary.LittleEndian.PutUint16(buf[3:5], cfg.ChannelMask)
	buf[5] = cfg.DataLen
	buf[6] = cfg.Resolution
	return buf
}

// DecodeEMGRawDataConfig parses the six-byte get-config response payload.
func DecodeEMGRawDataConfig(payload []byte) (EMGRawDataConfig, error) {
	if len(payload) != 6 {
		return EMGRawDataConfig{}, fmt.Errorf("%w: emg config len=%d", ErrMalformedPayload, len(payload))
	}
	return EMGRawDataConfig{
		SampleRate:  binary.LittleEndian.Uint16(payload[0:2]),
		ChannelMask: binary.LittleEndian.Uint16(payload[2:4]),
		DataLen:     payload[4],
		Resolution:  payload[5],
	}, nil
}

// EncodeEMGRawDataConfig is the response-side layout of DecodeEMGRawDataConfig.
func EncodeEMGRawDataConfig(cfg EMGRawDataConfig) []byte {
	return BuildSetEMGRawDataConfig(cfg)[1:]
}

func DecodeFeatureMap(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: feature map len=%d", ErrMalformedPayload, len(payload))
	}
	return binary.LittleEndian.Uint32(payload), nil
}

// DecodeFirmwareVersion accepts either an ASCII version string (more than
// four bytes) or up to four numeric components rendered dotted.
func DecodeFirmwareVersion(payload []byte) string {
	if len(payload) > 4 {
		return string(payload)
	}
	parts := make([]string, 0, len(payload))
	for _, b := range payload {
		parts = append(parts, strconv.Itoa(int(b)))
	}
	return strings.Join(parts, ".")
}

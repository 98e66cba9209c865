package gforce

import "fmt"

// Opcode is the first byte of every command and the second byte of every
// response.
type Opcode = byte

const (
	CmdGetProtocolVersion      Opcode = 0x00
	CmdGetFeatureMap           Opcode = 0x01
	CmdGetDeviceName           Opcode = 0x02
	CmdGetModelNumber          Opcode = 0x03
	CmdGetSerialNumber         Opcode = 0x04
	CmdGetHWRevision           Opcode = 0x05
	CmdGetFWRevision           Opcode = 0x06
	CmdGetManufacturerName     Opcode = 0x07
	CmdGetBatteryLevel         Opcode = 0x08
	CmdGetTemperature          Opcode = 0x09
	CmdGetBootloaderVersion    Opcode = 0x0A
	CmdPowerOff                Opcode = 0x1D
	CmdSwitchToOAD             Opcode = 0x1E
	CmdSystemReset             Opcode = 0x1F
	CmdSwitchService           Opcode = 0x20
	CmdSetLogLevel             Opcode = 0x21
	CmdSetLogModule            Opcode = 0x22
	CmdPrintKernelMsg          Opcode = 0x23
	CmdMotorControl            Opcode = 0x24
	CmdLEDControlTest          Opcode = 0x25
	CmdPackageIDControl        Opcode = 0x26
	CmdSendTrainingPackage     Opcode = 0x27
	CmdGetAccelerateCap        Opcode = 0x30
	CmdSetAccelerateConfig     Opcode = 0x31
	CmdGetGyroscopeCap         Opcode = 0x32
	CmdSetGyroscopeConfig      Opcode = 0x33
	CmdGetMagnetometerCap      Opcode = 0x34
	CmdSetMagnetometerConfig   Opcode = 0x35
	CmdGetEulerAngleCap        Opcode = 0x36
	CmdSetEulerAngleConfig     Opcode = 0x37
	CmdGetQuaternionCap        Opcode = 0x38
	CmdSetQuaternionConfig     Opcode = 0x39
	CmdGetRotationMatrixCap    Opcode = 0x3A
	CmdSetRotationMatrixConfig Opcode = 0x3B
	CmdGetGestureCap           Opcode = 0x3C
	CmdSetGestureConfig        Opcode = 0x3D
	CmdGetEMGRawDataCap        Opcode = 0x3E
	CmdSetEMGRawDataConfig     Opcode = 0x3F
	CmdGetMouseDataCap         Opcode = 0x40
	CmdSetMouseDataConfig      Opcode = 0x41
	CmdGetJoystickDataCap      Opcode = 0x42
	CmdSetJoystickDataConfig   Opcode = 0x43
	CmdGetDeviceStatusCap      Opcode = 0x44
	CmdSetDeviceStatusConfig   Opcode = 0x45
	CmdGetEMGRawDataConfig     Opcode = 0x46
	CmdSetDataNotifSwitch      Opcode = 0x4F
)

// DataNotifFlags selects which notification streams the device emits.
type DataNotifFlags uint32

const (
	DNFOff                DataNotifFlags = 0x00000000
	DNFAccelerate         DataNotifFlags = 0x00000001
	DNFGyroscope          DataNotifFlags = 0x00000002
	DNFMagnetometer       DataNotifFlags = 0x00000004
	DNFEulerAngle         DataNotifFlags = 0x00000008
	DNFQuaternion         DataNotifFlags = 0x00000010
	DNFRotationMatrix     DataNotifFlags = 0x00000020
	DNFEMGGesture         DataNotifFlags = 0x00000040
	DNFEMGRaw             DataNotifFlags = 0x00000080
	DNFHIDMouse           DataNotifFlags = 0x00000100
	DNFHIDJoystick        DataNotifFlags = 0x00000200
	DNFDeviceStatus       DataNotifFlags = 0x00000400
	DNFLog                DataNotifFlags = 0x00000800
	DNFEMGGestureStrength DataNotifFlags = 0x00001000
	DNFAll                DataNotifFlags = 0xFFFFFFFF
)

func (f DataNotifFlags) Has(flag DataNotifFlags) bool {
	return f&flag == flag
}

// NotifType is the first byte of a notification message.
type NotifType byte

const (
	NtfAccData       NotifType = 0x01
	NtfGyoData       NotifType = 0x02
	NtfMagData       NotifType = 0x03
	NtfEulerData     NotifType = 0x04
	NtfQuatFloatData NotifType = 0x05
	NtfRotaData      NotifType = 0x06
	NtfEMGGestData   NotifType = 0x07
	NtfEMGADCData    NotifType = 0x08
	NtfHIDMouse      NotifType = 0x09
	NtfHIDJoystick   NotifType = 0x0A
	NtfDevStatus     NotifType = 0x0B
	NtfLogData       NotifType = 0x0C
)

func (n NotifType) String() string {
	switch n {
	case NtfAccData:
		return "acc"
	case NtfGyoData:
		return "gyro"
	case NtfMagData:
		return "mag"
	case NtfEulerData:
		return "euler"
	case NtfQuatFloatData:
		return "quaternion"
	case NtfRotaData:
		return "rotation"
	case NtfEMGGestData:
		return "emg_gesture"
	case NtfEMGADCData:
		return "emg_raw"
	case NtfHIDMouse:
		return "hid_mouse"
	case NtfHIDJoystick:
		return "hid_joystick"
	case NtfDevStatus:
		return "device_status"
	case NtfLogData:
		return "log"
	default:
		return fmt.Sprintf("notif(0x%02x)", byte(n))
	}
}

type LogLevel byte

const (
	LogLevelDebug LogLevel = 0x00
	LogLevelInfo  LogLevel = 0x01
	LogLevelWarn  LogLevel = 0x02
	LogLevelError LogLevel = 0x03
	LogLevelFatal LogLevel = 0x04
	LogLevelNone  LogLevel = 0x05
)

// EMGRawDataConfig is the layout of the EMG raw data set/get commands.
type EMGRawDataConfig struct {
	SampleRate  uint16
	ChannelMask uint16
	DataLen     uint8
	Resolution  uint8
}

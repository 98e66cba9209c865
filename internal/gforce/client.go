package gforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/gforcelink/internal/link"
	"github.com/danmuck/gforcelink/internal/protocol"
)

var (
	ErrDeviceStatus     = errors.New("gforce: device returned failure status")
	ErrMalformedPayload = errors.New("gforce: malformed payload")
)

// Client issues catalog commands over a link and decodes their responses.
type Client struct {
	link    *link.Link
	timeout time.Duration
}

// NewClient wraps l. A zero timeout uses the link's default.
func NewClient(l *link.Link, timeout time.Duration) *Client {
	return &Client{link: l, timeout: timeout}
}

func (c *Client) Link() *link.Link {
	return c.link
}

func (c *Client) call(ctx context.Context, msg []byte) ([]byte, error) {
	res, err := c.link.Call(ctx, msg[0], msg[1:], c.timeout)
	if err != nil {
		return nil, err
	}
	if res.Status != protocol.StatusSuccess {
		return nil, fmt.Errorf("%w: opcode=0x%02x status=%s", ErrDeviceStatus, msg[0], res.Status)
	}
	return res.Payload, nil
}

func (c *Client) FirmwareVersion(ctx context.Context) (string, error) {
	payload, err := c.call(ctx, []byte{CmdGetFWRevision})
	if err != nil {
		return "", err
	}
	return DecodeFirmwareVersion(payload), nil
}

func (c *Client) FeatureMap(ctx context.Context) (uint32, error) {
	payload, err := c.call(ctx, []byte{CmdGetFeatureMap})
	if err != nil {
		return 0, err
	}
	return DecodeFeatureMap(payload)
}

func (c *Client) EMGRawDataConfig(ctx context.Context) (EMGRawDataConfig, error) {
	payload, err := c.call(ctx, []byte{CmdGetEMGRawDataConfig})
	if err != nil {
		return EMGRawDataConfig{}, err
	}
	return DecodeEMGRawDataConfig(payload)
}

func (c *Client) SetEMGRawDataConfig(ctx context.Context, cfg EMGRawDataConfig) error {
	_, err := c.call(ctx, BuildSetEMGRawDataConfig(cfg))
	return err
}

func (c *Client) SetDataNotifSwitch(ctx context.Context, flags DataNotifFlags) error {
	_, err := c.call(ctx, BuildSetDataNotifSwitch(flags))
	return err
}

func (c *Client) SetMotor(ctx context.Context, on bool) error {
	_, err := c.call(ctx, BuildMotor(on))
	return err
}

func (c *Client) SetLED(ctx context.Context, on bool) error {
	_, err := c.call(ctx, BuildLED(on))
	return err
}

func (c *Client) SetLogLevel(ctx context.Context, lvl LogLevel) error {
	_, err := c.call(ctx, BuildSetLogLevel(lvl))
	return err
}

// PowerOff and SystemReset may lose their response to the device dropping
// the link; callers usually accept protocol.ErrTimeout and
// protocol.ErrDisconnected from them.
func (c *Client) PowerOff(ctx context.Context) error {
	_, err := c.call(ctx, []byte{CmdPowerOff})
	return err
}

func (c *Client) SystemReset(ctx context.Context) error {
	_, err := c.call(ctx, []byte{CmdSystemReset})
	return err
}

// StartStreaming enables the streams in flags and routes their
// notifications to sink.
func (c *Client) StartStreaming(ctx context.Context, flags DataNotifFlags, sink link.NotificationSink) error {
	if err := c.link.StartNotifications(sink); err != nil {
		return err
	}
	if err := c.SetDataNotifSwitch(ctx, flags); err != nil {
		_ = c.link.StopNotifications()
		return err
	}
	return nil
}

func (c *Client) StopStreaming(ctx context.Context) error {
	err := c.SetDataNotifSwitch(ctx, DNFOff)
	if stopErr := c.link.StopNotifications(); err == nil {
		err = stopErr
	}
	return err
}

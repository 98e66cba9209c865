package gforce_test

import (
	"context"
	"errors"
	"testing"
	"time"

	cv "github.com/glycerine/goconvey/convey"

	"github.com/danmuck/gforcelink/internal/gforce"
	"github.com/danmuck/gforcelink/internal/link"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/sim"
	"github.com/danmuck/gforcelink/internal/testutil/testlog"
)

func newArmband(t *testing.T, timeout time.Duration) (*sim.Armband, *gforce.Client) {
	t.Helper()
	band := sim.NewArmband(sim.DefaultConfig(), sim.DefaultProfile())
	l := link.New(band, link.DefaultConfig())
	band.Attach(l)
	t.Cleanup(func() {
		_ = l.Close()
		band.Close()
	})
	return band, gforce.NewClient(l, timeout)
}

func TestClientQueriesArmband(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()

	cv.Convey("catalog queries against a simulated armband decode their responses", t, func() {
		band, client := newArmband(t, time.Second)

		fw, err := client.FirmwareVersion(ctx)
		cv.So(err, cv.ShouldBeNil)
		cv.So(fw, cv.ShouldEqual, sim.DefaultProfile().FirmwareVersion)

		features, err := client.FeatureMap(ctx)
		cv.So(err, cv.ShouldBeNil)
		cv.So(features, cv.ShouldEqual, sim.DefaultProfile().FeatureMap)

		emg, err := client.EMGRawDataConfig(ctx)
		cv.So(err, cv.ShouldBeNil)
		cv.So(emg, cv.ShouldResemble, sim.DefaultProfile().EMG)

		cv.Convey("setters change device state", func() {
			cv.So(client.SetLED(ctx, true), cv.ShouldBeNil)
			cv.So(client.SetMotor(ctx, true), cv.ShouldBeNil)
			cv.So(client.SetLogLevel(ctx, gforce.LogLevelWarn), cv.ShouldBeNil)
			_, led, motor, lvl := band.State()
			cv.So(led, cv.ShouldBeTrue)
			cv.So(motor, cv.ShouldBeTrue)
			cv.So(lvl, cv.ShouldEqual, gforce.LogLevelWarn)

			next := gforce.EMGRawDataConfig{SampleRate: 650, ChannelMask: 0x000F, DataLen: 128, Resolution: 12}
			cv.So(client.SetEMGRawDataConfig(ctx, next), cv.ShouldBeNil)
			got, err := client.EMGRawDataConfig(ctx)
			cv.So(err, cv.ShouldBeNil)
			cv.So(got, cv.ShouldResemble, next)
		})

		cv.Convey("a rejected parameter surfaces the device status", func() {
			bad := gforce.EMGRawDataConfig{SampleRate: 500, DataLen: 128, Resolution: 10}
			err := client.SetEMGRawDataConfig(ctx, bad)
			cv.So(errors.Is(err, gforce.ErrDeviceStatus), cv.ShouldBeTrue)
		})
	})
}

func TestClientUnsupportedOpcode(t *testing.T) {
	testlog.Start(t)
	_, client := newArmband(t, time.Second)
	res, err := client.Link().Call(context.Background(), gforce.CmdGetBatteryLevel, nil, time.Second)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Status != protocol.StatusNotSupport {
		t.Fatalf("expected not-supported status, got %s", res.Status)
	}
}

func TestClientTimeoutOnSilentDevice(t *testing.T) {
	testlog.Start(t)
	band, client := newArmband(t, 50*time.Millisecond)
	band.Mute(gforce.CmdGetFWRevision, true)
	_, err := client.FirmwareVersion(context.Background())
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if n := len(client.Link().Pending()); n != 0 {
		t.Fatalf("pending after timeout: %d", n)
	}

	band.Mute(gforce.CmdGetFWRevision, false)
	if _, err := client.FirmwareVersion(context.Background()); err != nil {
		t.Fatalf("retry after timeout: %v", err)
	}
}

func TestClientDisconnectFailsOutstanding(t *testing.T) {
	testlog.Start(t)
	band, client := newArmband(t, 10*time.Second)
	band.Mute(gforce.CmdGetFWRevision, true)

	errc := make(chan error, 1)
	go func() {
		_, err := client.FirmwareVersion(context.Background())
		errc <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(client.Link().Pending()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("command never registered")
		}
		time.Sleep(time.Millisecond)
	}

	band.Disconnect()
	select {
	case err := <-errc:
		if !errors.Is(err, protocol.ErrDisconnected) {
			t.Fatalf("expected disconnected, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("outstanding command never completed")
	}
	if !client.Link().Closed() {
		t.Fatalf("link still open after disconnect")
	}
	if _, err := client.FeatureMap(context.Background()); protocol.RetCodeOf(err) != protocol.RetBadState {
		t.Fatalf("expected bad state after disconnect, got %v", err)
	}
}

func TestClientStreaming(t *testing.T) {
	testlog.Start(t)
	band, client := newArmband(t, time.Second)
	ctx := context.Background()

	got := make(chan []byte, 16)
	err := client.StartStreaming(ctx, gforce.DNFQuaternion|gforce.DNFEMGRaw, func(msg []byte) {
		got <- msg
	})
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	if !band.Subscribed() {
		t.Fatalf("device not subscribed")
	}
	if err := band.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var quat, emg int
	for i := 0; i < 2; i++ {
		select {
		case msg := <-got:
			typ, _, err := gforce.SplitNotification(msg)
			if err != nil {
				t.Fatalf("split: %v", err)
			}
			switch typ {
			case gforce.NtfQuatFloatData:
				if _, err := gforce.DecodeQuaternion(msg); err != nil {
					t.Fatalf("quaternion: %v", err)
				}
				quat++
			case gforce.NtfEMGADCData:
				samples, err := gforce.DecodeEMGRaw(msg, 8)
				if err != nil || len(samples) != 128 {
					t.Fatalf("emg: len=%d err=%v", len(samples), err)
				}
				emg++
			default:
				t.Fatalf("unexpected notification %s", typ)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %d never arrived", i)
		}
	}
	if quat != 1 || emg != 1 {
		t.Fatalf("quat=%d emg=%d", quat, emg)
	}

	if err := client.StopStreaming(ctx); err != nil {
		t.Fatalf("stop streaming: %v", err)
	}
	if band.Subscribed() {
		t.Fatalf("device still subscribed")
	}
	flags, _, _, _ := band.State()
	if flags != gforce.DNFOff {
		t.Fatalf("device flags 0x%x after stop", uint32(flags))
	}
}

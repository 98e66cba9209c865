package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/gforcelink/internal/gforce"
	"github.com/danmuck/gforcelink/internal/link"
	"github.com/danmuck/gforcelink/internal/logging"
	"github.com/danmuck/gforcelink/internal/observability"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/sim"
)

func main() {
	configPath := flag.String("config", "", "path to a gforcectl TOML config")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gforcectl: %v\n", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		fmt.Fprintf(os.Stderr, "gforcectl: unknown log_level %q\n", cfg.LogLevel)
		os.Exit(1)
	}
	logger := observability.InitLogger("gforcectl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddress != "" {
		srv := serveMetrics(cfg.MetricsAddress, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if failed := run(ctx, cfg, logger); failed > 0 {
		fmt.Fprintf(os.Stderr, "gforcectl: %d step(s) failed\n", failed)
		os.Exit(1)
	}
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	return srv
}

// run drives one session against a simulated armband and returns the number
// of failed steps.
func run(ctx context.Context, cfg runConfig, logger zerolog.Logger) int {
	band := sim.NewArmband(cfg.Device, cfg.Profile)
	l := link.New(band, cfg.Link)
	band.Attach(l)
	defer band.Close()
	defer l.Close()
	client := gforce.NewClient(l, 0)

	logger.Info().Str("serial", band.Serial()).Str("link", l.ID()).Int("mtu", band.MTU()).Msg("session started")

	failed := 0
	step := func(name string, err error, detail string) {
		code := protocol.RetCodeOf(err)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("step", name).Str("ret", code.String()).Msg("step failed")
			fmt.Printf("%-18s ret=%d (%s) err=%v\n", name, code, code, err)
			return
		}
		logger.Info().Str("step", name).Str("result", detail).Msg("step ok")
		fmt.Printf("%-18s ret=%d %s\n", name, code, detail)
	}

	fw, err := client.FirmwareVersion(ctx)
	step("firmware_version", err, fw)

	features, err := client.FeatureMap(ctx)
	step("feature_map", err, fmt.Sprintf("0x%08x", features))

	step("led_on", client.SetLED(ctx, true), "")
	step("motor_on", client.SetMotor(ctx, true), "")
	step("motor_off", client.SetMotor(ctx, false), "")
	step("led_off", client.SetLED(ctx, false), "")

	emg, err := client.EMGRawDataConfig(ctx)
	step("emg_config", err, fmt.Sprintf("rate=%d mask=0x%04x len=%d bits=%d",
		emg.SampleRate, emg.ChannelMask, emg.DataLen, emg.Resolution))

	if cfg.Stream > 0 && err == nil {
		summary, err := stream(ctx, client, band, cfg, emg, logger)
		step("stream", err, summary)
	}
	return failed
}

func stream(ctx context.Context, client *gforce.Client, band *sim.Armband, cfg runConfig,
	emg gforce.EMGRawDataConfig, logger zerolog.Logger) (string, error) {
	var (
		mu     sync.Mutex
		quats  int
		emgs   int
		errs   int
		latest gforce.Rate
		meter  = gforce.NewRateMeter(100, gforce.EMGSamplesPerPacket)
	)
	sink := func(msg []byte) {
		mu.Lock()
		defer mu.Unlock()
		typ, _, err := gforce.SplitNotification(msg)
		if err != nil {
			errs++
			return
		}
		switch typ {
		case gforce.NtfQuatFloatData:
			if _, err := gforce.DecodeQuaternion(msg); err != nil {
				errs++
				return
			}
			quats++
		case gforce.NtfEMGADCData:
			if _, err := gforce.DecodeEMGRaw(msg, emg.Resolution); err != nil {
				errs++
				return
			}
			emgs++
			if r, ok := meter.Observe(len(msg), time.Now()); ok {
				latest = r
				logger.Debug().Float64("samples_per_sec", r.SampleRate).
					Float64("bytes_per_sec", r.ByteRate).Msg("emg rate")
			}
		}
	}

	if err := client.StartStreaming(ctx, gforce.DNFQuaternion|gforce.DNFEMGRaw, sink); err != nil {
		return "", err
	}
	go band.Run(cfg.StreamInterval)

	timer := time.NewTimer(cfg.Stream)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.StopStreaming(stopCtx)

	mu.Lock()
	defer mu.Unlock()
	summary := fmt.Sprintf("quaternion=%d emg=%d malformed=%d emg_rate=%.1f/s",
		quats, emgs, errs, latest.SampleRate)
	return summary, err
}

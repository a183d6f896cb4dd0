// wmbus-gateway: receive wM-Bus telegrams with a CC1101 and publish meter
// values
//
// The gateway loads its configuration, configures the radio for the selected
// profile, and runs the receiver and the dispatcher until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/config"
	"github.com/herlein/gowmbus/pkg/dispatch"
	"github.com/herlein/gowmbus/pkg/led"
	"github.com/herlein/gowmbus/pkg/logging"
	"github.com/herlein/gowmbus/pkg/meters"
	"github.com/herlein/gowmbus/pkg/metrics"
	"github.com/herlein/gowmbus/pkg/radio"
	"github.com/herlein/gowmbus/pkg/receiver"
	"github.com/herlein/gowmbus/pkg/sink"
)

func main() {
	configPath := flag.String("c", "", "Config file (default: wmbus.yaml in . or /etc/gowmbus)")
	defaults := flag.String("write-defaults", "", "Write a default config file to this path and exit")
	flag.Parse()

	if *defaults != "" {
		if err := config.WriteDefaults(*defaults); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to: %s\n", *defaults)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
	logger.Info("gateway stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := metrics.NewRegistry()
	app := metrics.NewAppMetrics(reg)

	if cfg.Metrics.Enable {
		srv := startMetrics(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	chip, closeRadio, err := radio.Open(cfg.Radio, logger)
	if err != nil {
		return err
	}
	defer closeRadio()

	profile, err := radio.Profile(cfg.Radio)
	if err != nil {
		return err
	}
	if err := cc1101.Configure(chip, profile); err != nil {
		return fmt.Errorf("configure radio: %w", err)
	}
	logger.Info("radio configured", zap.Stringer("profile", profile))

	d, closeSinks, err := newDispatcher(cfg, reg, app, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	rcv := receiver.New(chip, receiver.Options{
		SyncMode:  cfg.Receiver.SyncMode,
		ExtraTime: cfg.Receiver.ExtraTime,
		Clock:     clockwork.NewRealClock(),
		Logger:    logger,
		Observer:  app,
	})

	if cfg.Receiver.Mode == config.ModePoll {
		return poll(ctx, rcv, d)
	}

	queue := receiver.NewQueue(cfg.Receiver.QueueSize)
	done := make(chan error, 1)
	go func() { done <- rcv.Run(ctx, queue) }()

	// Run returns when the receiver closes the queue
	if err := d.Run(context.WithoutCancel(ctx), queue); err != nil {
		return err
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// poll drives the receiver from this goroutine and dispatches inline
func poll(ctx context.Context, rcv *receiver.Receiver, d *dispatch.Dispatcher) error {
	ticker := time.NewTicker(receiver.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if frame, ok := rcv.Poll(); ok {
				_ = d.Dispatch(ctx, frame)
			}
		}
	}
}

func startMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
	return srv
}

func newDispatcher(cfg *config.Config, reg prometheus.Registerer, app *metrics.AppMetrics, logger *zap.Logger) (*dispatch.Dispatcher, func(), error) {
	regs, err := dispatch.NewRegistrations(cfg.Meters)
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	sinks := []dispatch.Sink{sink.NewLog(logger), sink.NewPrometheus(reg)}
	if cfg.MQTT.Enable {
		m, err := sink.NewMQTT(cfg.MQTT, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, m)
		closers = append(closers, m.Close)
	}
	if cfg.Redis.Enable {
		r, err := sink.NewRedis(cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, r)
		closers = append(closers, func() { _ = r.Close() })
	}

	var blinker dispatch.Blinker
	if cfg.LED.Pin != "" {
		b, err := led.Open(cfg.LED.Pin, cfg.LED.BlinkTime)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		blinker = b
		closers = append(closers, func() { _ = b.Close() })
	}

	tracker := dispatch.NewTracker()
	tracker.SetCallback(func(m dispatch.HeardMeter) {
		logger.Info("new meter heard",
			zap.String("id", m.Address.ID),
			zap.String("manufacturer", m.Address.ManufacturerCode()),
			zap.String("driver", m.Driver),
			zap.Bool("registered", m.Registered))
	})

	catalog := meters.NewCatalog()
	logger.Info("meters registered", zap.Int("count", len(regs)), zap.Strings("drivers", catalog.Names()))

	d := dispatch.New(catalog, sinks, regs, dispatch.Options{
		LogAll:   cfg.LogAll,
		Blinker:  blinker,
		Observer: app,
		Tracker:  tracker,
		Logger:   logger,
	})
	return d, closeAll, nil
}

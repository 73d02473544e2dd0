package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/hrvmon/internal/api"
	"codeberg.org/mutker/hrvmon/internal/config"
	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	"codeberg.org/mutker/hrvmon/internal/metrics"
	"codeberg.org/mutker/hrvmon/internal/pid"
	"codeberg.org/mutker/hrvmon/internal/publish"
	"codeberg.org/mutker/hrvmon/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if cfg.Replay != "" {
		if _, err := replay(cfg.Replay, logger.Default()); err != nil {
			fatal(err).Msg("Replay failed")
		}
		return
	}

	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		fatal(err).Msg("Failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()
	log := logger.Default()

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.MetricsEnabled
	metricsCfg.DBPath = cfg.MetricsDB
	history, err := metrics.NewService(metricsCfg, log)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close metrics")
		}
	}()

	pub, err := publish.New(publish.Config{
		Kind:         cfg.Publisher,
		MQTTBroker:   cfg.MQTTBroker,
		MQTTTopic:    cfg.MQTTTopic,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}, log)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close publisher")
		}
	}()

	m := measurement.New(
		measurement.WithStatsWindow(cfg.Window),
		measurement.WithOutlierFilter(cfg.OutlierFilter),
	)
	in := transport.NewIngestor(m, log)
	gauges := api.NewGauges(in)

	logger.Info().
		Str("recording_id", m.ID().String()).
		Dur("window", cfg.Window).
		Float64("outlier_filter", cfg.OutlierFilter).
		Msg("Recording started")

	nc, err := transport.Connect(cfg.NATSURL, log)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	if _, err := transport.Subscribe(nc, cfg.NATSSubject, in); err != nil {
		nc.Close()
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	logger.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("Subscribed to notifications")

	serveErr := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		srv := api.NewServer(m, history, gauges, log)
		go func() {
			serveErr <- srv.ListenAndServe(ctx, cfg.HTTPAddr)
		}()
	}

	d := &daemon{
		m:       m,
		history: history,
		gauges:  gauges,
		pub:     pub,
		now:     time.Now,
	}

	loopErr := d.loop(ctx, cfg.RefreshInterval, serveErr)

	if err := nc.Drain(); err != nil {
		logger.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
	d.tick(context.Background())

	if err := d.persist(cfg.SessionFile); err != nil {
		logger.Error().Err(err).Str("path", cfg.SessionFile).Msg("Failed to store recording")
	}

	return loopErr
}

// fatal returns a fatal event, carrying the error code when err has one.
func fatal(err error) *logger.LogEvent {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		return logger.FatalWithCode(appErr)
	}
	return &logger.LogEvent{Event: logger.Fatal().Err(err)}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

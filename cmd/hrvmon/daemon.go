package main

import (
	"context"
	"time"

	"codeberg.org/mutker/hrvmon/internal/api"
	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	"codeberg.org/mutker/hrvmon/internal/metrics"
	"codeberg.org/mutker/hrvmon/internal/publish"
	"codeberg.org/mutker/hrvmon/internal/storage"
)

// daemon rebuilds the recording on a fixed cadence and fans the snapshot
// out to history, gauges and the publisher.
type daemon struct {
	m       *measurement.Measurement
	history metrics.MetricsCollector
	gauges  *api.Gauges
	pub     publish.Publisher
	now     func() time.Time
}

// loop ticks until ctx is canceled or the HTTP server fails.
func (d *daemon) loop(ctx context.Context, interval time.Duration, serveErr <-chan error) error {
	if interval <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			if err != nil {
				return errors.New().Wrap(errors.ErrMainLoop, err)
			}
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick runs one refresh cycle. Failures of the outputs are logged and do not
// stop the daemon.
func (d *daemon) tick(ctx context.Context) {
	d.m.Refresh()
	snap := d.m.Snapshot()
	d.gauges.Update(snap)

	if err := d.history.Record(ctx, metrics.NewSnapshot(d.now(), snap)); err != nil {
		logger.Warn().Err(err).Msg("Failed to record snapshot history")
	}
	if err := d.pub.Publish(ctx, snap); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish snapshot")
	}

	logSnapshot(logger.Debug(), snap)
}

// persist appends the recording to path. Empty recordings and an empty
// path are skipped.
func (d *daemon) persist(path string) error {
	if path == "" || d.m.Snapshot().Messages == 0 {
		return nil
	}
	if err := storage.Append(path, d.m); err != nil {
		return err
	}
	logger.Info().Str("path", path).Str("recording_id", d.m.ID().String()).Msg("Recording stored")
	return nil
}

func logSnapshot(ev *logger.LogEvent, snap measurement.Snapshot) {
	e := ev.
		Str("recording_id", snap.ID.String()).
		Str("state", snap.State.String()).
		Int("messages", snap.Messages).
		Int("rr_intervals", snap.RRIntervals).
		Dur("elapsed", snap.Elapsed)
	if st := snap.Stats; st != nil {
		e = e.
			Float64("rmssd", st.RMSSD).
			Float64("sdrr", st.SDRR).
			Float64("sd1", st.SD1).
			Float64("sd2", st.SD2).
			Float64("sd1_sd2_ratio", st.SD1SD2Ratio).
			Float64("avg_hr", st.AvgHR)
	}
	if snap.DFA1a != nil {
		e = e.Float64("dfa1a", *snap.DFA1a)
	}
	e.Msg("HRV snapshot")
}

package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*MetricsSnapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (MetricsRepository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, sqlFailure{Phase: "create_directory", Path: cfg.DBPath, Error: err.Error()})
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_auto_vacuum=2")
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, sqlFailure{Phase: "open_database", Path: cfg.DBPath, Error: err.Error()})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Snapshot history opened")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*MetricsSnapshot, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Without a batch timeout every Record flushes.
	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(snapshot *MetricsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// History returns up to limit rows of a recording, newest first. Buffered
// rows are flushed before querying.
func (r *repository) History(ctx context.Context, recordingID string, limit int) ([]MetricsSnapshot, error) {
	errFactory := errors.New()

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, selectHistorySQL, recordingID, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []MetricsSnapshot
	for rows.Next() {
		var (
			s                                MetricsSnapshot
			ts, elapsedMS                    int64
			rmssd, sdrr, sd1, sd2, ratio, hr sql.NullFloat64
		)
		if err := rows.Scan(&ts, &s.RecordingID, &elapsedMS, &s.State,
			&s.Messages, &s.RRCount,
			&rmssd, &sdrr, &sd1, &sd2, &ratio, &hr); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		s.Timestamp = time.UnixMilli(ts).UTC()
		s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		s.Stats = StatsMetrics{
			RMSSD:       fromNull(rmssd),
			SDRR:        fromNull(sdrr),
			SD1:         fromNull(sd1),
			SD2:         fromNull(sd2),
			SD1SD2Ratio: fromNull(ratio),
			AvgHR:       fromNull(hr),
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		closeErr = r.close()
	})
	return closeErr
}

func (r *repository) close() error {
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	if err := r.flush(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to flush snapshot history on close")
	}
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, sqlFailure{Phase: "checkpoint_wal", Error: err.Error()})
	}
	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, sqlFailure{Phase: "close_database", Error: err.Error()})
	}

	r.logger.Info().Msg("Snapshot history closed")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic metrics flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	err := inTx(r.db, ErrTransactionFailed, r.logger, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertSnapshotSQL)
		if err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
		defer stmt.Close()

		for _, s := range r.buffer {
			if _, err := stmt.Exec(
				s.Timestamp.UnixMilli(),
				s.RecordingID,
				s.Elapsed.Milliseconds(),
				s.State,
				int64(s.Messages),
				int64(s.RRCount),
				toNull(s.Stats.RMSSD),
				toNull(s.Stats.SDRR),
				toNull(s.Stats.SD1),
				toNull(s.Stats.SD2),
				toNull(s.Stats.SD1SD2Ratio),
				toNull(s.Stats.AvgHR),
			); err != nil {
				return errFactory.WithData(ErrTransactionFailed, sqlFailure{Phase: "insert_snapshot", Error: err.Error()})
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error().Err(err).Int("rows", len(r.buffer)).Msg("Failed to flush snapshot history")
		return err
	}

	r.logger.Debug().Int("rows", len(r.buffer)).Msg("Flushed snapshot history")
	r.buffer = r.buffer[:0]
	return nil
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

package metrics

import (
	"database/sql"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS snapshots (
	       id            INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp     INTEGER NOT NULL,
	       recording_id  TEXT NOT NULL,
	       elapsed_ms    INTEGER NOT NULL CHECK (elapsed_ms >= 0),
	       state         TEXT NOT NULL CHECK (state IN ('empty', 'accumulating', 'ready')),
	       messages      INTEGER NOT NULL CHECK (typeof(messages) = 'integer'),
	       rr_count      INTEGER NOT NULL CHECK (typeof(rr_count) = 'integer'),
	       rmssd         REAL,
	       sdrr          REAL,
	       sd1           REAL,
	       sd2           REAL,
	       sd1_sd2_ratio REAL,
	       avg_hr        REAL
	   );
	   CREATE INDEX IF NOT EXISTS snapshots_recording ON snapshots (recording_id, timestamp);`

	insertSnapshotSQL = `
    INSERT INTO snapshots (
        timestamp, recording_id, elapsed_ms, state,
        messages, rr_count,
        rmssd, sdrr, sd1, sd2, sd1_sd2_ratio, avg_hr
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectHistorySQL = `
    SELECT timestamp, recording_id, elapsed_ms, state,
        messages, rr_count,
        rmssd, sdrr, sd1, sd2, sd1_sd2_ratio, avg_hr
    FROM snapshots
    WHERE recording_id = ?
    ORDER BY id DESC
    LIMIT ?`
)

var historyTables = []string{"snapshots", "schema_versions"}

// sqlFailure is attached to schema errors as error data.
type sqlFailure struct {
	Phase string
	Table string `json:",omitempty"`
	Path  string `json:",omitempty"`
	Error string
}

// inTx runs fn in a transaction and commits it. Any error rolls back and is
// wrapped with code.
func inTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(*sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(code, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to roll back schema transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errFactory.WithData(code, sqlFailure{Phase: "commit", Error: err.Error()})
	}
	return nil
}

// InitSchema creates the tables and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating snapshot history schema")

	err := inTx(db, ErrSchemaInitFailed, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, sqlFailure{Phase: "create_tables", Error: err.Error()})
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`,
			SchemaVersion,
		); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, sqlFailure{Phase: "record_version", Error: err.Error()})
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("Schema initialized")
	return nil
}

// GetSchemaVersion returns the stored schema version, 0 for a fresh
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	var exists bool
	if err := db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'schema_versions')`,
	).Scan(&exists); err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, sqlFailure{Phase: "check_table", Table: "schema_versions", Error: err.Error()})
	}
	if !exists {
		return 0, nil
	}

	var version int
	err := db.QueryRow(`SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, errFactory.WithData(ErrSchemaValidationFailed, sqlFailure{Phase: "get_version", Error: err.Error()})
	}
	return version, nil
}

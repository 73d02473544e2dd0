package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
)

// backupDatabase copies the database into backupDir, tagged with its schema
// version. VACUUM INTO must run outside a transaction.
func backupDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, sqlFailure{Phase: "create_backup_dir", Path: backupDir, Error: err.Error()})
	}

	name := fmt.Sprintf("metrics_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	backupPath := filepath.Join(backupDir, name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, sqlFailure{Phase: "backup", Path: backupPath, Error: err.Error()})
	}

	log.Info().Str("path", backupPath).Int("version", version).Msg("Snapshot history backed up")
	return backupPath, nil
}

// ValidateAndUpdateSchema creates the schema on a fresh database. A database
// from another schema version is backed up, dropped and recreated; history
// rows are not migrated.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	if version == SchemaVersion {
		log.Debug().Int("version", version).Msg("Schema version is current")
		return nil
	}

	if version != 0 {
		log.Warn().Int("found", version).Int("want", SchemaVersion).Msg("Schema version mismatch, recreating")
		if _, err := backupDatabase(db, backupDir, version, log); err != nil {
			return err
		}
	}

	if err := dropTables(db, log); err != nil {
		return err
	}
	return InitSchema(db, log)
}

func dropTables(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	return inTx(db, ErrSchemaMigrationFailed, log, func(tx *sql.Tx) error {
		for _, table := range historyTables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errFactory.WithData(ErrSchemaMigrationFailed, sqlFailure{Phase: "drop_table", Table: table, Error: err.Error()})
			}
		}
		return nil
	})
}

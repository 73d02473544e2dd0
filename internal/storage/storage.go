// Package storage persists recordings as a JSON list in a single file.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Load reads every recording stored at path. A missing file is an empty
// store.
func Load(path string) ([]*measurement.Measurement, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}

	var ms []*measurement.Measurement
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, errFactory.Wrap(ErrDecodeFailed, err)
	}
	for i, m := range ms {
		if m == nil {
			return nil, errFactory.WithData(ErrDecodeFailed, i)
		}
	}

	logger.Debug().
		Str("path", path).
		Int("recordings", len(ms)).
		Msg("Loaded recordings")

	return ms, nil
}

// Store replaces the file at path with ms. The file is written to a
// temporary sibling first and renamed into place.
func Store(path string, ms []*measurement.Measurement) error {
	errFactory := errors.New()

	if ms == nil {
		ms = []*measurement.Measurement{}
	}
	data, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	logger.Debug().
		Str("path", path).
		Int("recordings", len(ms)).
		Msg("Stored recordings")

	return nil
}

// Append adds m to the recordings stored at path. A recording with the same
// ID is replaced.
func Append(path string, m *measurement.Measurement) error {
	ms, err := Load(path)
	if err != nil {
		return err
	}

	id := m.ID()
	for i, existing := range ms {
		if existing.ID() == id {
			ms[i] = m
			return Store(path, ms)
		}
	}
	return Store(path, append(ms, m))
}

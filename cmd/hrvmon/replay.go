package main

import (
	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/storage"
)

// replay rebuilds every recording stored at path and logs its statistics.
// It returns the number of recordings.
func replay(path string, log logger.Logger) (int, error) {
	ms, err := storage.Load(path)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrReplay, err)
	}
	if len(ms) == 0 {
		log.Warn().Str("path", path).Msg("No recordings to replay")
		return 0, nil
	}

	for _, m := range ms {
		m.Refresh()
		logSnapshot(log.Info(), m.Snapshot())
	}
	return len(ms), nil
}

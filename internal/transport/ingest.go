package transport

import (
	"sync/atomic"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/hrs"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
)

// Ingestor decodes notifications and records them. Undecodable payloads are
// logged and dropped; they never stop ingestion.
type Ingestor struct {
	rec measurement.Recorder
	log logger.Logger

	received atomic.Uint64
	dropped  atomic.Uint64
}

func NewIngestor(rec measurement.Recorder, log logger.Logger) *Ingestor {
	return &Ingestor{rec: rec, log: log}
}

// Handle decodes one notification payload and records it.
func (in *Ingestor) Handle(data []byte) error {
	in.received.Add(1)

	sample, err := hrs.Decode(data)
	if err != nil {
		in.dropped.Add(1)
		wrapped := errors.New().Wrap(ErrDecode, err)
		in.log.ErrorWithContext(wrapped, "transport", "decode").
			Int("bytes", len(data)).
			Send()
		return wrapped
	}

	if err := in.rec.Record(sample); err != nil {
		in.dropped.Add(1)
		in.log.Error().Err(err).Msg("Failed to record sample")
		return err
	}

	in.log.Debug().Stringer("sample", sample).Msg("Recorded sample")
	return nil
}

// Received counts every payload handed to Handle.
func (in *Ingestor) Received() uint64 { return in.received.Load() }

// Dropped counts payloads that could not be decoded or recorded.
func (in *Ingestor) Dropped() uint64 { return in.dropped.Load() }

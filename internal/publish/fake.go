package publish

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/hrvmon/internal/measurement"
)

// FakePublisher records published snapshots for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Snapshots contains every snapshot that was published.
	Snapshots []measurement.Snapshot

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(_ context.Context, snap measurement.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(time.Now(), snap)
	if err != nil {
		return err
	}
	f.Snapshots = append(f.Snapshots, snap)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Published returns the number of recorded snapshots.
func (f *FakePublisher) Published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Snapshots)
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

package publish

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/hrs"
	"codeberg.org/mutker/hrvmon/internal/hrv"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readySnapshot() measurement.Snapshot {
	window := 5 * time.Minute
	last := hrs.NewSample(61, []uint16{980}, nil, hrs.SensorContact{})
	alpha := 0.83
	return measurement.Snapshot{
		ID:            uuid.MustParse("6f1c1a8e-3c52-4a8e-9d0a-4a3b2c1d0e0f"),
		Elapsed:       90 * time.Second,
		State:         hrv.Ready,
		Window:        &window,
		OutlierFilter: 50,
		Messages:      90,
		RRIntervals:   86,
		LastSample:    &last,
		DFA1a:         &alpha,
		Stats: &hrv.Statistics{
			RMSSD:          42.5,
			SDRR:           51,
			SD1:            30,
			SD1Eigenvector: [2]float64{-0.7071, 0.7071},
			SD2:            0,
			SD2Eigenvector: [2]float64{0.7071, 0.7071},
			SD1SD2Ratio:    math.Inf(1),
			AvgHR:          61.2,
		},
	}
}

func TestFormatPayload(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	data, err := FormatPayload(ts, readySnapshot())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2024-03-01T08:00:00Z", got["timestamp"])
	assert.Equal(t, "6f1c1a8e-3c52-4a8e-9d0a-4a3b2c1d0e0f", got["recording_id"])
	assert.Equal(t, "ready", got["state"])
	assert.InDelta(t, 90.0, got["elapsed_s"], 0)
	assert.InDelta(t, 300.0, got["window_s"], 0)
	assert.InDelta(t, 61.0, got["heart_rate"], 0)

	stats := got["stats"].(map[string]any)
	assert.InDelta(t, 42.5, stats["rmssd"], 0)
	assert.InDelta(t, 0.0, stats["sd2"], 0)
	assert.Nil(t, stats["sd1_sd2_ratio"])
	assert.Len(t, stats["sd1_eigenvector"], 2)
	assert.InDelta(t, 0.83, stats["dfa1a"], 0)
}

func TestFormatPayloadBeforeReady(t *testing.T) {
	data, err := FormatPayload(time.Now(), measurement.New().Snapshot())
	require.NoError(t, err)

	var got Payload
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "empty", got.State)
	assert.Nil(t, got.WindowSec)
	assert.Nil(t, got.HeartRate)
	assert.Nil(t, got.Stats.RMSSD)
	assert.Nil(t, got.Stats.SD1Eigenvector)
	assert.Nil(t, got.Stats.DFA1a)
}

func TestFormatPayloadNaNEigenvector(t *testing.T) {
	snap := readySnapshot()
	snap.Stats.SD1 = math.NaN()
	snap.Stats.SD1Eigenvector = [2]float64{math.NaN(), math.NaN()}
	nan := math.NaN()
	snap.DFA1a = &nan

	p := NewPayload(time.Now(), snap)
	assert.Nil(t, p.Stats.SD1)
	assert.Nil(t, p.Stats.SD1Eigenvector)
	require.NotNil(t, p.Stats.SD2Eigenvector)
	assert.Nil(t, p.Stats.DFA1a)

	_, err := json.Marshal(p)
	assert.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Kind: "none"}.Validate())
	assert.NoError(t, Config{Kind: "MQTT", MQTTBroker: "tcp://localhost:1883"}.Validate())
	assert.NoError(t, Config{Kind: "kafka", KafkaBrokers: []string{"localhost:9092"}}.Validate())

	assert.True(t, errors.HasCode(Config{Kind: "mqtt"}.Validate(), ErrInvalidConfig))
	assert.True(t, errors.HasCode(Config{Kind: "kafka"}.Validate(), ErrInvalidConfig))
	assert.True(t, errors.HasCode(Config{Kind: "amqp"}.Validate(), ErrUnknownKind))
}

func TestNewDefaultsToNoop(t *testing.T) {
	p, err := New(Config{}, logger.Default())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), readySnapshot()))
	assert.NoError(t, p.Close())
}

func TestNewKafka(t *testing.T) {
	p, err := New(Config{Kind: KindKafka, KafkaBrokers: []string{"localhost:9092"}}, logger.Default())
	require.NoError(t, err)

	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	w, ok := kp.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, w.Topic)
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	require.NoError(t, f.Publish(context.Background(), readySnapshot()))
	assert.Equal(t, 1, f.Published())
	assert.Len(t, f.Payloads, 1)

	f.PublishError = stderrors.New("broker down")
	assert.Error(t, f.Publish(context.Background(), readySnapshot()))
	assert.Equal(t, 1, f.Published())

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeKafkaWriter{}
	p := newKafkaPublisher(w, logger.Default())
	snap := readySnapshot()

	require.NoError(t, p.Publish(context.Background(), snap))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, snap.ID.String(), string(w.msgs[0].Key))

	var got Payload
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 86, got.RRIntervals)

	w.err = stderrors.New("leader not available")
	err := p.Publish(context.Background(), snap)
	assert.True(t, errors.HasCode(err, ErrPublish))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

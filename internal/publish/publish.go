// Package publish sends HRV snapshots to a message broker.
package publish

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
)

// Kinds of publisher.
const (
	KindNone  = "none"
	KindMQTT  = "mqtt"
	KindKafka = "kafka"
)

// DefaultTopic is used by both brokers when none is configured.
const DefaultTopic = "hrv/snapshots"

// Publisher publishes snapshots. Failures are returned to the caller and
// must not stop the daemon.
type Publisher interface {
	Publish(ctx context.Context, snap measurement.Snapshot) error
	Close() error
}

// Config selects and configures a publisher.
type Config struct {
	Kind         string
	MQTTBroker   string
	MQTTTopic    string
	KafkaBrokers []string
	KafkaTopic   string
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch strings.ToLower(c.Kind) {
	case "", KindNone:
	case KindMQTT:
		if c.MQTTBroker == "" {
			return errFactory.WithMessage(ErrInvalidConfig, "mqtt publisher requires a broker")
		}
	case KindKafka:
		if len(c.KafkaBrokers) == 0 {
			return errFactory.WithMessage(ErrInvalidConfig, "kafka publisher requires at least one broker")
		}
	default:
		return errFactory.WithData(ErrUnknownKind, c.Kind)
	}
	return nil
}

// New connects the publisher selected by cfg.Kind.
func New(cfg Config, log logger.Logger) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Kind) {
	case KindMQTT:
		return NewMQTTPublisher(cfg.MQTTBroker, topicOrDefault(cfg.MQTTTopic), log)
	case KindKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, topicOrDefault(cfg.KafkaTopic), log), nil
	default:
		log.Debug().Msg("Publishing disabled, using no-op publisher")
		return Noop{}, nil
	}
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return DefaultTopic
	}
	return topic
}

// Payload is the JSON message of one snapshot. Statistics are null until
// the recording is ready and whenever a value is not finite.
type Payload struct {
	Timestamp     string       `json:"timestamp"`
	RecordingID   string       `json:"recording_id"`
	ElapsedSec    float64      `json:"elapsed_s"`
	State         string       `json:"state"`
	Messages      int          `json:"messages"`
	RRIntervals   int          `json:"rr_intervals"`
	WindowSec     *float64     `json:"window_s"`
	OutlierFilter float64      `json:"outlier_filter"`
	HeartRate     *float64     `json:"heart_rate"`
	Stats         StatsPayload `json:"stats"`
}

// StatsPayload carries the statistics of a Payload.
type StatsPayload struct {
	RMSSD          *float64    `json:"rmssd"`
	SDRR           *float64    `json:"sdrr"`
	SD1            *float64    `json:"sd1"`
	SD2            *float64    `json:"sd2"`
	SD1SD2Ratio    *float64    `json:"sd1_sd2_ratio"`
	AvgHR          *float64    `json:"avg_hr"`
	DFA1a          *float64    `json:"dfa1a"`
	SD1Eigenvector *[2]float64 `json:"sd1_eigenvector"`
	SD2Eigenvector *[2]float64 `json:"sd2_eigenvector"`
}

// NewPayload builds the payload of snap taken at ts.
func NewPayload(ts time.Time, snap measurement.Snapshot) Payload {
	p := Payload{
		Timestamp:     ts.UTC().Format(time.RFC3339Nano),
		RecordingID:   snap.ID.String(),
		ElapsedSec:    snap.Elapsed.Seconds(),
		State:         snap.State.String(),
		Messages:      snap.Messages,
		RRIntervals:   snap.RRIntervals,
		OutlierFilter: snap.OutlierFilter,
	}
	if snap.Window != nil {
		w := snap.Window.Seconds()
		p.WindowSec = &w
	}
	if snap.LastSample != nil {
		p.HeartRate = Finite(snap.LastSample.HeartRate)
	}
	if st := snap.Stats; st != nil {
		p.Stats = StatsPayload{
			RMSSD:          Finite(st.RMSSD),
			SDRR:           Finite(st.SDRR),
			SD1:            Finite(st.SD1),
			SD2:            Finite(st.SD2),
			SD1SD2Ratio:    Finite(st.SD1SD2Ratio),
			AvgHR:          Finite(st.AvgHR),
			SD1Eigenvector: finiteVec(st.SD1Eigenvector),
			SD2Eigenvector: finiteVec(st.SD2Eigenvector),
		}
		if snap.DFA1a != nil {
			p.Stats.DFA1a = Finite(*snap.DFA1a)
		}
	}
	return p
}

// FormatPayload encodes the payload of snap taken at ts.
func FormatPayload(ts time.Time, snap measurement.Snapshot) ([]byte, error) {
	data, err := json.Marshal(NewPayload(ts, snap))
	if err != nil {
		return nil, errors.New().Wrap(ErrFormat, err)
	}
	return data, nil
}

// Finite returns nil for NaN and infinities.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finiteVec(v [2]float64) *[2]float64 {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return &v
}

// Noop discards every snapshot.
type Noop struct{}

func (Noop) Publish(context.Context, measurement.Snapshot) error { return nil }
func (Noop) Close() error                                        { return nil }

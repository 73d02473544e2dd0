package measurement

import (
	"strings"

	"codeberg.org/mutker/hrvmon/internal/errors"
)

// Metric names a scalar HRV metric and its time-series track.
type Metric string

const (
	MetricRMSSD Metric = "rmssd"
	MetricSDRR  Metric = "sdrr"
	MetricSD1   Metric = "sd1"
	MetricSD2   Metric = "sd2"
	MetricHR    Metric = "hr"
	MetricDFA1a Metric = "dfa1a"
)

// Metrics lists every metric with a time-series track.
var Metrics = []Metric{MetricRMSSD, MetricSDRR, MetricSD1, MetricSD2, MetricHR, MetricDFA1a}

// ParseMetric maps a metric name onto a Metric.
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}
	return "", errors.New().WithData(ErrUnknownMetric, name)
}

// Package hrs decodes Bluetooth Heart Rate Service measurement notifications.
package hrs

import (
	"fmt"
	"strings"
)

// MaxRRIntervals is the number of RR intervals kept from one notification.
const MaxRRIntervals = 9

// SensorContact reports the contact status bits of a notification.
type SensorContact struct {
	Supported bool `json:"supported"`
	Detected  bool `json:"detected"`
}

// Sample is one decoded heart rate measurement. It is not modified after
// decoding.
type Sample struct {
	HeartRate      float64       `json:"heart_rate"`
	RRIntervals    []uint16      `json:"rr_intervals"`
	EnergyExpended *uint16       `json:"energy_expended,omitempty"`
	Contact        SensorContact `json:"sensor_contact"`
}

// NewSample builds a sample from already decoded values.
func NewSample(hr float64, rr []uint16, energy *uint16, contact SensorContact) Sample {
	if len(rr) > MaxRRIntervals {
		rr = rr[:MaxRRIntervals]
	}
	s := Sample{
		HeartRate:   hr,
		RRIntervals: append([]uint16(nil), rr...),
		Contact:     contact,
	}
	if energy != nil {
		e := *energy
		s.EnergyExpended = &e
	}
	return s
}

// HasRRIntervals reports whether the sample carries at least one RR interval.
func (s Sample) HasRRIntervals() bool {
	return len(s.RRIntervals) > 0
}

// HasEnergyExpended reports whether the energy expended field was present.
func (s Sample) HasEnergyExpended() bool {
	return s.EnergyExpended != nil
}

// RR returns the RR intervals in milliseconds as floats.
func (s Sample) RR() []float64 {
	out := make([]float64, len(s.RRIntervals))
	for i, rr := range s.RRIntervals {
		out[i] = float64(rr)
	}
	return out
}

func (s Sample) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hr=%.0fbpm", s.HeartRate)
	if s.HasRRIntervals() {
		parts := make([]string, len(s.RRIntervals))
		for i, rr := range s.RRIntervals {
			parts[i] = fmt.Sprintf("%dms", rr)
		}
		fmt.Fprintf(&b, " rr=[%s]", strings.Join(parts, ", "))
	}
	if s.HasEnergyExpended() {
		fmt.Fprintf(&b, " energy=%dkJ", *s.EnergyExpended)
	}
	fmt.Fprintf(&b, " contact_supported=%t contact=%t", s.Contact.Supported, s.Contact.Detected)
	return b.String()
}

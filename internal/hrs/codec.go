package hrs

import (
	"encoding/binary"
	"math"

	"codeberg.org/mutker/hrvmon/internal/errors"
)

// Flag bits of the first byte of a Heart Rate Measurement notification.
const (
	FlagHR16Bit          = 1 << 0
	FlagContactDetected  = 1 << 1
	FlagContactSupported = 1 << 2
	FlagEnergyExpended   = 1 << 3
	FlagRRIntervals      = 1 << 4
)

const (
	minMessageLen = 2
	ticksPerSec   = 1024
	msPerSec      = 1000
)

// Decode parses a Heart Rate Measurement notification.
func Decode(data []byte) (Sample, error) {
	if len(data) < minMessageLen {
		return Sample{}, ErrTooShort.WithData(len(data))
	}

	flags := data[0]
	offset := 1

	var s Sample
	if flags&FlagHR16Bit != 0 {
		if len(data) < offset+2 {
			return Sample{}, ErrTruncated.WithData("heart rate")
		}
		s.HeartRate = float64(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	} else {
		s.HeartRate = float64(data[offset])
		offset++
	}

	s.Contact = SensorContact{
		Supported: flags&FlagContactSupported != 0,
		Detected:  flags&FlagContactDetected != 0,
	}

	if flags&FlagEnergyExpended != 0 {
		if len(data) < offset+2 {
			return Sample{}, ErrTruncated.WithData("energy expended")
		}
		energy := binary.LittleEndian.Uint16(data[offset:])
		s.EnergyExpended = &energy
		offset += 2
	}

	if flags&FlagRRIntervals != 0 {
		// A trailing odd byte cannot hold an interval and is ignored.
		n := min((len(data)-offset)/2, MaxRRIntervals)
		s.RRIntervals = make([]uint16, n)
		for i := 0; i < n; i++ {
			s.RRIntervals[i] = TicksToMillis(binary.LittleEndian.Uint16(data[offset+2*i:]))
		}
	}

	return s, nil
}

// Encode produces the notification bytes for s. The heart rate is written
// as 16 bit when it does not fit in one byte.
func Encode(s Sample) ([]byte, error) {
	errFactory := errors.New()

	if s.HeartRate < 0 || s.HeartRate > math.MaxUint16 {
		return nil, errFactory.WithData(ErrCodeEncode, s.HeartRate)
	}
	if len(s.RRIntervals) > MaxRRIntervals {
		return nil, errFactory.WithData(ErrCodeEncode, len(s.RRIntervals))
	}

	hr := uint16(math.Round(s.HeartRate))
	var flags byte
	if hr > math.MaxUint8 {
		flags |= FlagHR16Bit
	}
	if s.Contact.Detected {
		flags |= FlagContactDetected
	}
	if s.Contact.Supported {
		flags |= FlagContactSupported
	}
	if s.EnergyExpended != nil {
		flags |= FlagEnergyExpended
	}
	if len(s.RRIntervals) > 0 {
		flags |= FlagRRIntervals
	}

	out := []byte{flags}
	if flags&FlagHR16Bit != 0 {
		out = binary.LittleEndian.AppendUint16(out, hr)
	} else {
		out = append(out, byte(hr))
	}
	if s.EnergyExpended != nil {
		out = binary.LittleEndian.AppendUint16(out, *s.EnergyExpended)
	}
	for _, rr := range s.RRIntervals {
		ticks, ok := MillisToTicks(rr)
		if !ok {
			return nil, errFactory.WithData(ErrCodeEncode, rr)
		}
		out = binary.LittleEndian.AppendUint16(out, ticks)
	}

	return out, nil
}

// TicksToMillis converts a raw 1/1024 s RR value to whole milliseconds,
// truncating.
func TicksToMillis(ticks uint16) uint16 {
	return uint16(uint32(ticks) * msPerSec / ticksPerSec)
}

// MillisToTicks returns the smallest tick count that decodes back to ms.
func MillisToTicks(ms uint16) (uint16, bool) {
	ticks := (uint32(ms)*ticksPerSec + msPerSec - 1) / msPerSec
	if ticks > math.MaxUint16 {
		return 0, false
	}
	return uint16(ticks), true
}

package hrs

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrCodeTooShort  = errors.ErrorCode("hrs_too_short")
	ErrCodeTruncated = errors.ErrorCode("hrs_truncated")
	ErrCodeEncode    = errors.ErrorCode("hrs_encode_failed")
)

var (
	// ErrTooShort is returned for payloads without a flags and HR byte.
	ErrTooShort = errors.New().WithMessage(ErrCodeTooShort, "heart rate message too short")
	// ErrTruncated is returned when a flagged field runs past the payload.
	ErrTruncated = errors.New().WithMessage(ErrCodeTruncated, "heart rate message truncated")
)

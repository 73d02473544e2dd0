package hrv

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrCodeDFATooShort   = errors.ErrorCode("hrv_dfa_too_short")
	ErrCodeDFADegenerate = errors.ErrorCode("hrv_dfa_degenerate")
)

package measurement

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrOutOfOrder    = errors.ErrorCode("measurement_out_of_order")
	ErrDecodeFailed  = errors.ErrorCode("measurement_decode_failed")
	ErrEncodeFailed  = errors.ErrorCode("measurement_encode_failed")
	ErrUnknownMetric = errors.ErrorCode("measurement_unknown_metric")
)

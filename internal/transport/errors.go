package transport

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrConnect   = errors.ErrorCode("transport_connect_failed")
	ErrSubscribe = errors.ErrSubscribe
	ErrDecode    = errors.ErrorCode("transport_decode_failed")
)

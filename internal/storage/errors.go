package storage

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrReadFailed   = errors.ErrorCode("storage_read_failed")
	ErrWriteFailed  = errors.ErrorCode("storage_write_failed")
	ErrDecodeFailed = errors.ErrorCode("storage_decode_failed")
	ErrEncodeFailed = errors.ErrorCode("storage_encode_failed")
)

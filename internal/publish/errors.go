package publish

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrPublish       = errors.ErrPublish
	ErrConnect       = errors.ErrorCode("publish_connect_failed")
	ErrTimeout       = errors.ErrTimeout
	ErrFormat        = errors.ErrorCode("publish_format_failed")
	ErrUnknownKind   = errors.ErrorCode("publish_unknown_kind")
	ErrInvalidConfig = errors.ErrInvalidConfig
)

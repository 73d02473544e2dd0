package api

import "codeberg.org/mutker/hrvmon/internal/errors"

const (
	ErrBadRequest = errors.ErrInvalidArgument
	ErrServe      = errors.ErrorCode("api_serve_failed")
)

package errors_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInvalidConfig)
	assert.Equal(t, "Invalid configuration", err.Error())
	assert.Equal(t, errors.ErrInvalidConfig, err.Code())

	err = errFactory.WithMessage(errors.ErrInvalidConfig, "window must not be negative")
	assert.Equal(t, "window must not be negative", err.Error())

	err = errFactory.WithData(errors.ErrInvalidInterval, "-1s")
	assert.Equal(t, "Invalid interval value: -1s", err.Error())

	err = errFactory.WithData(errors.ErrorCode("unknown_code"), 3)
	assert.Equal(t, "unknown_code: 3", err.Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := errors.New().Wrap(errors.ErrOperationFailed, cause)

	assert.Equal(t, "Operation failed: disk full", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestIsMatchesByCode(t *testing.T) {
	errFactory := errors.New()
	sentinel := errFactory.New(errors.ErrTimeout)

	wrapped := errFactory.Wrap(errors.ErrOperationFailed, errFactory.WithData(errors.ErrTimeout, "5s"))

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, errFactory.New(errors.ErrInternal)))
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()
	err := errFactory.Wrap(errors.ErrInitApp, errFactory.Wrap(errors.ErrReadConfig, stderrors.New("bad toml")))

	assert.True(t, errors.HasCode(err, errors.ErrInitApp))
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.False(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
	assert.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrInternal))
	assert.False(t, errors.HasCode(nil, errors.ErrInternal))
}

func TestWithDataKeepsCode(t *testing.T) {
	base := errors.New().New(errors.ErrResourceNotFound)
	withData := base.WithData("session.json")

	require.NotNil(t, withData)
	assert.Equal(t, errors.ErrResourceNotFound, withData.Code())
	assert.Equal(t, "session.json", withData.GetData())
	assert.Nil(t, base.GetData())
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorWithInternalPreservesSentinel(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrStorage.WithInternal(cause)

	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "disk full")

	// The sentinel itself stays untouched.
	require.Nil(t, ErrStorage.Internal)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	appErr := FromError(ErrCacheFull)
	require.Equal(t, "CACHE_FULL", appErr.Code)

	wrapped := FromError(fmt.Errorf("plain failure"))
	require.Equal(t, ErrInternalServer.Code, wrapped.Code)
	require.NotNil(t, wrapped.Internal)
}

func TestRetryability(t *testing.T) {
	require.False(t, IsRetryable(ErrPolicyRejected))
	require.False(t, IsRetryable(ErrCrypto))
	require.True(t, IsRetryable(ErrCacheFull))
	require.True(t, IsRetryable(ErrStorage))
	require.True(t, IsRetryable(ErrStorageTimeout))

	// Retryability survives wrapping.
	require.True(t, IsRetryable(ErrStorageTimeout.WithInternal(errors.New("deadline"))))
	require.False(t, IsRetryable(errors.New("unknown")))
}

func TestWrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "saving entry")

	require.Equal(t, "INTERNAL_ERROR", err.Code)
	require.ErrorIs(t, err, cause)
}

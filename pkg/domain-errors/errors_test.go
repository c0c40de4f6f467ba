package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outermost code", func(t *testing.T) {
		err := New(CodeImmutableCapsule, "capsule is sealed")
		assert.True(t, HasCode(err, CodeImmutableCapsule))
		assert.False(t, HasCode(err, CodeValidation))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("seal: %w", New(CodeValidation, "no rules"))
		assert.True(t, HasCode(err, CodeValidation))
	})

	t.Run("foreign errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStorageUnavailable, "blob store unavailable")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "blob store unavailable: connection refused", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestErrorsIsComparesCodes(t *testing.T) {
	err := New(CodeIntegrity, "wrong passphrase or corrupted data")
	require.ErrorIs(t, err, New(CodeIntegrity, "any message"))
	assert.NotErrorIs(t, err, New(CodeNotFound, "wrong passphrase or corrupted data"))
}

package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("wrapped domain error keeps its code", func(t *testing.T) {
		base := New(CodeValidation, "version is required")
		err := fmt.Errorf("record consent: %w", base)

		assert.True(t, Is(err, CodeValidation))
		assert.False(t, Is(err, CodeInternal))
		assert.Equal(t, CodeValidation, CodeOf(err))
		assert.Equal(t, "version is required", MessageOf(err))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Empty(t, MessageOf(err))
	})

	t.Run("wrap nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))
	})

	t.Run("wrap exposes cause", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := Wrap(cause, CodeUnavailable, "consent store unavailable")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "store_unavailable")
	})
}

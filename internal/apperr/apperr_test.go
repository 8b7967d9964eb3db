package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"wrapped_not_found", fmt.Errorf("load account: %w", ErrNotFound), CodeNotFound},
		{"insufficient", fmt.Errorf("debit: %w", ErrInsufficientFunds), CodeInsufficientFunds},
		{"invalid_helper", Invalid("scale must be >= 1, got %d", 0), CodeInvalidRequest},
		{"infra", errors.New("connection reset"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestRestore_KeepsMessageAndClass(t *testing.T) {
	t.Parallel()

	err := Restore(CodeInvalidState, "account 42 is not active")
	require.Error(t, err)
	assert.Equal(t, "account 42 is not active", err.Error())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, IsDomain(err))

	plain := Restore("bogus", "boom")
	assert.Equal(t, "boom", plain.Error())
	assert.False(t, IsDomain(plain))
}

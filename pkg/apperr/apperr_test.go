package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("quantity must be positive"), ErrValidation},
		{"not found", NotFound("order %s", "o-1"), ErrNotFound},
		{"invalid state", InvalidState("order is FILLED"), ErrInvalidState},
		{"stale", Stale("version 3 < 5"), ErrStale},
		{"infrastructure", Infrastructure(cause, "save order"), ErrInfrastructure},
		{"wrapped twice", fmt.Errorf("execute: %w", NotFound("order")), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestInfrastructureKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Infrastructure(cause, "publish")

	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Infrastructure(nil, "noop"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "quantity must be positive", Message(Validation("quantity must be positive")))
	assert.Equal(t, "order o-1", Message(NotFound("order o-1")))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", Message(nil))
}

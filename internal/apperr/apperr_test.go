package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("op", "bad"), KindValidation},
		{"wrapped not found", fmt.Errorf("ctx: %w", NotFound("op", "missing")), KindNotFound},
		{"external", External("op", "s3 down", errors.New("boom")), KindExternalService},
		{"plain error", errors.New("plain"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSentinelMatchesWithOp(t *testing.T) {
	err := fmt.Errorf("complete: %w", WithOp(ErrAlreadyCompleted, "uploads.complete"))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.NotErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, "upload already completed", Message(err))
}

func TestExternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := External("storage.put", "put object", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "storage.put")
	assert.Equal(t, "internal error", Message(errors.New("x")))
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "upandup/pkg/domain-errors"
)

func TestClassify(t *testing.T) {
	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := Classify("dhiway", OpCreateDID, fmt.Errorf("do: %w", context.DeadlineExceeded))
		assert.Equal(t, KindTimeout, err.Kind)
		assert.True(t, err.Retryable())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("typed errors pass through", func(t *testing.T) {
		orig := NewError(KindRejected, "cord", OpIssueCredential, "schema rejected", nil)
		err := Classify("cord", OpIssueCredential, fmt.Errorf("wrap: %w", orig))
		assert.Same(t, orig, err)
		assert.False(t, err.Retryable())
	})

	t.Run("unknown errors become unavailable", func(t *testing.T) {
		err := Classify("dhiway", OpVerifyCredential, errors.New("connection reset"))
		assert.Equal(t, KindUnavailable, err.Kind)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Classify("dhiway", OpResolveDID, nil))
	})
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("issue: %w", NewError(KindUnavailable, "sandbox", OpIssueCredential, "down", nil))
	assert.True(t, IsKind(err, KindUnavailable))
	assert.False(t, IsKind(err, KindRejected))
	assert.False(t, IsKind(errors.New("plain"), KindUnavailable))
}

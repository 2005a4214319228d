package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "upandup/pkg/domain-errors"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("1234 5678 9012")
	require.NoError(t, err)
	assert.NotContains(t, hash, "123456789012")

	assert.NoError(t, Verify("123456789012", hash))
	err = Verify("123456789013", hash)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHash_RejectsEmpty(t *testing.T) {
	_, err := Hash("   ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

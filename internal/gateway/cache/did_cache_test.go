package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upandup/internal/gateway"
	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/ledger/models"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestResolveFallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	provider := sandbox.New()
	created, err := provider.CreateDID(ctx, models.WorkerDetails{Name: "Asha", Phone: "+919876543210"})
	require.NoError(t, err)

	c := New(provider, unreachableRedis(t))

	doc, err := c.ResolveDID(ctx, created.DID)
	require.NoError(t, err)
	assert.Equal(t, created.DID, doc.ID)
	assert.Equal(t, models.AnchorConfirmed, doc.AnchorStatus)

	_, err = c.ResolveDID(ctx, "did:cord:missing")
	assert.ErrorIs(t, err, gateway.ErrDIDNotFound)
}

func TestCreateDelegates(t *testing.T) {
	c := New(sandbox.New(), unreachableRedis(t))
	res, err := c.CreateDID(context.Background(), models.WorkerDetails{Name: "Asha", Phone: "+919876543210"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DID)
}

func TestNewPanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { New(nil, unreachableRedis(t)) })
	assert.Panics(t, func() { New(sandbox.New(), nil) })
}

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis runs one Redis container for every subtest of the caller.
func startRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache(endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := startRedis(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, rc.Ping(ctx))
	})

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "lesson:test", []byte(`{"title":"Greetings"}`), 10*time.Second))

		val, found, err := rc.Get(ctx, "lesson:test")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"title":"Greetings"}`, string(val))
	})

	t.Run("GetMissing", func(t *testing.T) {
		val, found, err := rc.Get(ctx, "nonexistent:key")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("SetExpires", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "expiry:key", []byte("temp"), time.Second))

		_, found, err := rc.Get(ctx, "expiry:key")
		require.NoError(t, err)
		assert.True(t, found)

		time.Sleep(1500 * time.Millisecond)

		_, found, err = rc.Get(ctx, "expiry:key")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "session:gone", []byte("x"), 10*time.Second))
		require.NoError(t, rc.Delete(ctx, "session:gone"))

		_, found, err := rc.Get(ctx, "session:gone")
		require.NoError(t, err)
		assert.False(t, found)

		// deleting a missing key is not an error
		assert.NoError(t, rc.Delete(ctx, "does:not:exist"))
	})

	t.Run("RenderStatus", func(t *testing.T) {
		jobID := uuid.New()

		status, found, err := rc.GetRenderStatus(ctx, jobID)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, status)

		require.NoError(t, rc.SetRenderStatus(ctx, jobID, "running:40", 10*time.Second))
		status, found, err = rc.GetRenderStatus(ctx, jobID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "running:40", status)

		require.NoError(t, rc.SetRenderStatus(ctx, jobID, "completed", 10*time.Second))
		status, _, err = rc.GetRenderStatus(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, "completed", status)
	})

	t.Run("IncrWithExpiryCounts", func(t *testing.T) {
		key := cache.RateLimitKey("lc_" + uuid.NewString()[:5])
		for want := int64(1); want <= 3; want++ {
			got, ttl, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Greater(t, ttl, time.Duration(0))
			assert.LessOrEqual(t, ttl, 10*time.Second)
		}
	})

	t.Run("IncrWithExpiryFixedWindow", func(t *testing.T) {
		key := cache.RateLimitKey("lc_" + uuid.NewString()[:5])

		_, _, err := rc.IncrWithExpiry(ctx, key, time.Second)
		require.NoError(t, err)
		// a later increment with a longer expiry does not extend the window
		_, ttl, err := rc.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Second)

		time.Sleep(1500 * time.Millisecond)

		got, _, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})
}

// --- Cache Key Builders ---

func TestKeyBuilders(t *testing.T) {
	id := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	assert.Equal(t, "render:33333333-3333-3333-3333-333333333333", cache.RenderStatusKey(id))
	assert.Equal(t, "session:33333333-3333-3333-3333-333333333333", cache.SessionKey(id))
	assert.Equal(t, "ratelimit:lc_abcd1", cache.RateLimitKey("lc_abcd1"))
	assert.Equal(t, "lesson:33333333-3333-3333-3333-333333333333:reqhash456", cache.LessonKey(id, "reqhash456"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	id := uuid.New()

	keys := map[string]bool{
		cache.RenderStatusKey(id):       true,
		cache.SessionKey(id):            true,
		cache.RateLimitKey("lc_prefix"): true,
		cache.LessonKey(id, "h1"):       true,
	}
	assert.Len(t, keys, 4, "all keys should be unique")
}

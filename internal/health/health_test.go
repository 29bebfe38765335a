package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dyluth/atelier/internal/loader"
	"github.com/dyluth/atelier/internal/testutil"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats loader.Stats

func (f fixedStats) Stats() loader.Stats { return loader.Stats(f) }

func TestHealthCheck_MethodNotAllowed(t *testing.T) {
	server := NewServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthCheck_Healthy(t *testing.T) {
	client, _ := testutil.NewRedisCatalog(t)
	server := NewServer(client, fixedStats{Hits: 3, Fetches: 2, Entries: 2}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "connected", response.Catalog)
	require.NotNil(t, response.Cache)
	assert.Equal(t, int64(3), response.Cache.Hits)
	assert.Equal(t, 2, response.Cache.Entries)
}

func TestHealthCheck_UnhealthyWhenRedisUnavailable(t *testing.T) {
	// Port 9 is the discard protocol - connections fail immediately
	client, err := catalog.NewClient(&redis.Options{
		Addr:         "localhost:9",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	}, "test")
	require.NoError(t, err)
	defer client.Close()

	server := NewServer(client, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "disconnected", response.Catalog)
	assert.NotEmpty(t, response.Error)
	assert.Nil(t, response.Cache)
}

func TestShutdown_NotStarted(t *testing.T) {
	assert.NoError(t, NewServer(nil, nil, nil).Shutdown(context.Background()))
}

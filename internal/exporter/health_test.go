package exporter

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/pbsmon/pbs_exporter/internal/testutil"
)

func TestHealthCheckHealthy(t *testing.T) {
	registry, cleanup := newTestRegistry(t, tu.NewMockServer().WithVersion(tu.DefaultVersion()), 0)
	defer cleanup()

	health := NewHealthChecker(registry)
	assert.NoError(t, health.Check(context.Background()))
}

func TestHealthCheckUnhealthy(t *testing.T) {
	registry, cleanup := newTestRegistry(t, tu.NewMockServer().
		WithFailingEndpoint(tu.PathVersion, http.StatusBadGateway), 0)
	defer cleanup()

	health := NewHealthChecker(registry)
	err := health.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectivity")
}

func TestHealthCheckCachesVerdict(t *testing.T) {
	var calls int32
	builder := tu.NewMockServer().
		WithCustomEndpoint(tu.PathVersion, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set(tu.ContentTypeHeader, tu.ContentTypeJSON)
			_, _ = w.Write([]byte(`{"data":{"version":"3.2.1","release":"1","repoid":"abc"}}`))
		})

	registry, cleanup := newTestRegistry(t, builder, 0)
	defer cleanup()

	health := NewHealthChecker(registry)
	require.NoError(t, health.Check(context.Background()))
	require.NoError(t, health.Check(context.Background()))
	require.NoError(t, health.Check(context.Background()))

	// The probe ran once; the later checks were answered from cache.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Flush forces the next check back to the wire.
	health.Flush()
	require.NoError(t, health.Check(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

package exporter

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbsmon/pbs_exporter/internal/models"
)

// TestConcurrentCollectAndRender hammers the registry with overlapping
// collection cycles and renders. The registry's mutex must guarantee that
// every render observes a complete cycle: parseable output, pbs_up set,
// and the full snapshot set, never a torn half-reset state. Run with -race.
func TestConcurrentCollectAndRender(t *testing.T) {
	const (
		collectors        = 4
		renderers         = 4
		cyclesPerRoutine  = 10
		rendersPerRoutine = 25
		expectedSnapshots = 2
	)

	builder := baseBuilder("store1").
		WithSnapshots("store1", []models.Snapshot{
			{BackupType: "vm", BackupID: "100", BackupTime: 200},
			{BackupType: "vm", BackupID: "100", BackupTime: 100},
		})

	registry, cleanup := newTestRegistry(t, builder, 0)
	defer cleanup()

	// Prime once so renderers racing ahead of the first concurrent cycle
	// still see populated state.
	require.NoError(t, registry.Collect(context.Background()))

	errCh := make(chan error, collectors*cyclesPerRoutine)
	var wg sync.WaitGroup

	for i := 0; i < collectors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < cyclesPerRoutine; j++ {
				if err := registry.Collect(context.Background()); err != nil {
					errCh <- err
				}
			}
		}()
	}

	type renderResult struct {
		up        float64
		snapshots int
	}
	resultCh := make(chan renderResult, renderers*rendersPerRoutine)

	for i := 0; i < renderers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rendersPerRoutine; j++ {
				body, err := registry.Render()
				if err != nil {
					errCh <- err
					continue
				}

				parser := expfmt.NewTextParser(model.UTF8Validation)
				families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
				if err != nil {
					errCh <- err
					continue
				}

				result := renderResult{up: -1}
				if up, ok := families["pbs_up"]; ok && len(up.Metric) == 1 {
					result.up = up.Metric[0].GetGauge().GetValue()
				}
				if info, ok := families["pbs_snapshot_info"]; ok {
					result.snapshots = len(info.Metric)
				}
				resultCh <- result
			}
		}()
	}

	wg.Wait()
	close(errCh)
	close(resultCh)

	for err := range errCh {
		t.Errorf("concurrent operation failed: %v", err)
	}

	// Every render must reflect a completed cycle. A torn state would show
	// up as pbs_up 0 (mid-cycle, post-reset) or a partial snapshot set.
	for result := range resultCh {
		assert.Equal(t, 1.0, result.up, "render observed an incomplete cycle")
		assert.Equal(t, expectedSnapshots, result.snapshots,
			"render observed a partially populated snapshot family")
	}
}

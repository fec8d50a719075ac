package exporter

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbsmon/pbs_exporter/internal/models"
	tu "github.com/pbsmon/pbs_exporter/internal/testutil"
)

func newTestClient(t *testing.T, builder *tu.MockServerBuilder) (*PbsClient, func()) {
	t.Helper()
	server := builder.Build()
	client := NewPbsClient(tu.TestConfig(server.URL))
	return client, func() {
		_ = client.Close()
		server.Close()
	}
}

func TestFetchNodeStatus(t *testing.T) {
	client, cleanup := newTestClient(t, tu.NewMockServer().WithNodeStatus(tu.DefaultNodeStatus()))
	defer cleanup()

	node, err := client.FetchNodeStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.05, node.CPU)
	assert.Equal(t, [3]float64{0.5, 0.4, 0.3}, node.LoadAvg)
	assert.Equal(t, uint64(16)<<30, node.Memory.Total)
}

func TestFetchDatastoreUsage(t *testing.T) {
	client, cleanup := newTestClient(t, tu.NewMockServer().WithDatastoreUsage([]models.DatastoreUsage{
		{Store: "store1", Total: 1000, Used: 400, Avail: 600},
		{Store: "store2", Total: 2000, Used: 100, Avail: 1900},
	}))
	defer cleanup()

	usage, err := client.FetchDatastoreUsage(context.Background())
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "store1", usage[0].Store)
	assert.Equal(t, uint64(1900), usage[1].Avail)
}

func TestFetchSnapshotsDecodesOptionalFields(t *testing.T) {
	client, cleanup := newTestClient(t, tu.NewMockServer().WithSnapshots("store1", []models.Snapshot{
		{
			BackupType: "vm",
			BackupID:   "100",
			BackupTime: 1700000000,
			Comment:    tu.StrPtr("nightly"),
			Size:       tu.U64Ptr(4096),
			Protected:  tu.BoolPtr(true),
			Verification: &models.VerificationStatus{
				State:      "ok",
				LastVerify: tu.I64Ptr(1700000500),
			},
		},
		{BackupType: "ct", BackupID: "200", BackupTime: 1700000100},
	}))
	defer cleanup()

	snapshots, err := client.FetchSnapshots(context.Background(), "store1")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	require.NotNil(t, snapshots[0].Comment)
	assert.Equal(t, "nightly", *snapshots[0].Comment)
	require.NotNil(t, snapshots[0].Verification)
	assert.Equal(t, "ok", snapshots[0].Verification.State)

	assert.Nil(t, snapshots[1].Comment)
	assert.Nil(t, snapshots[1].Size)
	assert.Nil(t, snapshots[1].Verification)
}

func TestFetchRejectsBadToken(t *testing.T) {
	server := tu.NewMockServer().WithVersion(tu.DefaultVersion()).Build()
	defer server.Close()

	cfg := tu.TestConfig(server.URL)
	cfg.PbsServer.TokenSecret = "wrong-secret"
	client := NewPbsClient(cfg)
	defer func() { _ = client.Close() }()

	_, err := client.FetchVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestFetchRejectsNonJSONResponse(t *testing.T) {
	client, cleanup := newTestClient(t, tu.NewMockServer().
		WithCustomEndpoint(tu.PathVersion, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(tu.ContentTypeHeader, "text/html")
			_, _ = w.Write([]byte("<html><body>login</body></html>"))
		}))
	defer cleanup()

	_, err := client.FetchVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/html")
}

func TestFetchAfterCloseFails(t *testing.T) {
	server := tu.NewMockServer().WithVersion(tu.DefaultVersion()).Build()
	defer server.Close()

	client := NewPbsClient(tu.TestConfig(server.URL))
	require.NoError(t, client.Close())

	_, err := client.FetchVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestCloseTwiceFails(t *testing.T) {
	client := NewPbsClient(tu.TestConfig("https://pbs.example.com:8007"))
	require.NoError(t, client.Close())
	assert.Error(t, client.Close())
}

func TestFetchGcStatusPartialFields(t *testing.T) {
	client, cleanup := newTestClient(t, tu.NewMockServer().WithGcStatus("store1", models.GcStatus{
		RemovedBytes: tu.U64Ptr(1024),
		LastRunState: tu.StrPtr("ok"),
		Duration:     tu.F64Ptr(12.5),
	}))
	defer cleanup()

	gc, err := client.FetchGcStatus(context.Background(), "store1")
	require.NoError(t, err)
	require.NotNil(t, gc.RemovedBytes)
	assert.Equal(t, uint64(1024), *gc.RemovedBytes)
	assert.Equal(t, 12.5, *gc.Duration)
	assert.Nil(t, gc.PendingBytes)
	assert.Nil(t, gc.LastRunEndtime)
}

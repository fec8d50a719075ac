package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/pbsmon/pbs_exporter/internal/models"
)

// MockServerBuilder builds an httptest server that mimics the PBS API.
// Endpoint payloads are registered with chainable With* methods; every
// registered endpoint validates the PBSAPIToken authorization header and
// replies 401 on mismatch, mirroring real PBS behavior.
//
// Example:
//
//	server := testutil.NewMockServer().
//	    WithNodeStatus(testutil.DefaultNodeStatus()).
//	    WithDatastoreUsage(usage).
//	    WithVersion(testutil.DefaultVersion()).
//	    Build()
//	defer server.Close()
type MockServerBuilder struct {
	handlers map[string]http.HandlerFunc
}

// NewMockServer creates an empty builder. Unregistered paths return 404.
func NewMockServer() *MockServerBuilder {
	return &MockServerBuilder{handlers: make(map[string]http.HandlerFunc)}
}

// withData registers a handler that wraps payload in the PBS {"data": ...}
// envelope after validating authentication.
func (b *MockServerBuilder) withData(path string, payload interface{}) *MockServerBuilder {
	b.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		if !validateAuth(w, r) {
			return
		}
		writeJSONResponse(w, map[string]interface{}{"data": payload})
	}
	return b
}

// WithNodeStatus registers the node status endpoint.
func (b *MockServerBuilder) WithNodeStatus(status models.NodeStatus) *MockServerBuilder {
	return b.withData(PathNodeStatus, status)
}

// WithDatastoreUsage registers the datastore usage endpoint.
func (b *MockServerBuilder) WithDatastoreUsage(usage []models.DatastoreUsage) *MockServerBuilder {
	return b.withData(PathDatastoreUsage, usage)
}

// WithSnapshots registers the snapshot listing for one datastore.
func (b *MockServerBuilder) WithSnapshots(datastore string, snapshots []models.Snapshot) *MockServerBuilder {
	return b.withData(PathSnapshots(datastore), snapshots)
}

// WithBackupGroups registers the group listing for one datastore.
func (b *MockServerBuilder) WithBackupGroups(datastore string, groups []models.BackupGroup) *MockServerBuilder {
	return b.withData(PathBackupGroups(datastore), groups)
}

// WithTasks registers the task listing endpoint (the limit query parameter
// is accepted and ignored).
func (b *MockServerBuilder) WithTasks(tasks []models.Task) *MockServerBuilder {
	return b.withData(PathTasks, tasks)
}

// WithGcStatus registers the GC status endpoint for one datastore.
func (b *MockServerBuilder) WithGcStatus(datastore string, gc models.GcStatus) *MockServerBuilder {
	return b.withData(PathGcStatus(datastore), gc)
}

// WithTapeDrives registers the tape drive listing endpoint.
func (b *MockServerBuilder) WithTapeDrives(drives []models.TapeDrive) *MockServerBuilder {
	return b.withData(PathTapeDrives, drives)
}

// WithVersion registers the version endpoint.
func (b *MockServerBuilder) WithVersion(version models.VersionInfo) *MockServerBuilder {
	return b.withData(PathVersion, version)
}

// WithFailingEndpoint makes path reply with the given status code and an
// empty JSON body.
func (b *MockServerBuilder) WithFailingEndpoint(path string, statusCode int) *MockServerBuilder {
	b.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ContentTypeHeader, ContentTypeJSON)
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(`{}`))
	}
	return b
}

// WithCustomEndpoint registers an arbitrary handler for path.
func (b *MockServerBuilder) WithCustomEndpoint(path string, handler http.HandlerFunc) *MockServerBuilder {
	b.handlers[path] = handler
	return b
}

// Build starts the mock server. The caller should defer server.Close().
func (b *MockServerBuilder) Build() *httptest.Server {
	mux := http.NewServeMux()
	for path, handler := range b.handlers {
		mux.HandleFunc(path, handler)
	}
	return httptest.NewServer(mux)
}

func validateAuth(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get(AuthorizationHeader) != TestAuthHeader {
		w.Header().Set(ContentTypeHeader, ContentTypeJSON)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"authentication failed"}`))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, payload interface{}) {
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(payload)
}

// TestConfig returns an exporter configuration pointed at the given mock
// server URL with the credentials the mock server accepts.
func TestConfig(serverURL string) models.Config {
	cfg := models.Config{}
	cfg.PbsServer.Endpoint = serverURL
	cfg.PbsServer.TokenID = TestTokenID
	cfg.PbsServer.TokenSecret = TestTokenSecret
	cfg.PbsServer.TimeoutSeconds = 5
	return cfg
}

// DefaultNodeStatus returns a plausible host status payload.
func DefaultNodeStatus() models.NodeStatus {
	return models.NodeStatus{
		CPU:     0.05,
		Wait:    0.01,
		LoadAvg: [3]float64{0.5, 0.4, 0.3},
		Memory:  models.Memory{Used: 4 << 30, Total: 16 << 30, Free: 12 << 30},
		Swap:    models.Memory{Used: 0, Total: 8 << 30, Free: 8 << 30},
		Root:    models.Disk{Used: 20 << 30, Total: 100 << 30, Avail: 80 << 30},
		Uptime:  86400,
	}
}

// DefaultVersion returns a plausible version payload.
func DefaultVersion() models.VersionInfo {
	return models.VersionInfo{Version: "3.2.1", Release: "1", RepoID: "abc123def456"}
}

// Package testutil provides shared test constants, pointer helpers, and a
// fluent mock PBS API server builder used across the exporter's test
// suites.
package testutil

import "fmt"

// HTTP headers
const (
	ContentTypeHeader   = "Content-Type"
	AuthorizationHeader = "Authorization"
	ContentTypeJSON     = "application/json"
)

// Credentials accepted by the mock server.
const (
	TestTokenID     = "monitoring@pbs!exporter"
	TestTokenSecret = "12345678-1234-1234-1234-123456789abc"
)

// TestAuthHeader is the Authorization value the mock server expects.
var TestAuthHeader = fmt.Sprintf("PBSAPIToken=%s:%s", TestTokenID, TestTokenSecret)

// Fixed API paths.
const (
	PathNodeStatus     = "/api2/json/nodes/localhost/status"
	PathDatastoreUsage = "/api2/json/status/datastore-usage"
	PathTasks          = "/api2/json/nodes/localhost/tasks"
	PathTapeDrives     = "/api2/json/tape/drive"
	PathVersion        = "/api2/json/version"
)

// PathSnapshots returns the snapshot listing path for a datastore.
func PathSnapshots(datastore string) string {
	return fmt.Sprintf("/api2/json/admin/datastore/%s/snapshots", datastore)
}

// PathBackupGroups returns the group listing path for a datastore.
func PathBackupGroups(datastore string) string {
	return fmt.Sprintf("/api2/json/admin/datastore/%s/groups", datastore)
}

// PathGcStatus returns the garbage collection status path for a datastore.
func PathGcStatus(datastore string) string {
	return fmt.Sprintf("/api2/json/admin/datastore/%s/gc", datastore)
}

// Pointer helpers for optional payload fields.

func StrPtr(s string) *string { return &s }

func U64Ptr(v uint64) *uint64 { return &v }

func I64Ptr(v int64) *int64 { return &v }

func F64Ptr(v float64) *float64 { return &v }

func BoolPtr(b bool) *bool { return &b }

package models

// GcStatus holds garbage collection status for a datastore, as returned by
// the /admin/datastore/{store}/gc endpoint. Every field is optional: a
// datastore that never ran GC reports none of them.
type GcStatus struct {
	// DiskBytes is the total bytes on disk.
	DiskBytes *uint64 `json:"disk-bytes,omitempty"`
	// RemovedBytes is the bytes reclaimed in the last GC run.
	RemovedBytes *uint64 `json:"removed-bytes,omitempty"`
	// PendingBytes is the bytes that can still be reclaimed.
	PendingBytes *uint64 `json:"pending-bytes,omitempty"`
	// LastRunEndtime is the unix timestamp of the last GC completion.
	LastRunEndtime *int64 `json:"last-run-endtime,omitempty"`
	// LastRunState is the last GC result string ("OK", error text, ...).
	LastRunState *string `json:"last-run-state,omitempty"`
	// Duration of the last GC run in seconds.
	Duration *float64 `json:"duration,omitempty"`
}

// GcStatusResponse is the API envelope for the GC status endpoint.
type GcStatusResponse struct {
	Data GcStatus `json:"data"`
}

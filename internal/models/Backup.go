package models

// BackupGroup describes the set of snapshots sharing a (backup-type,
// backup-id) pair within one datastore, as returned by the
// /admin/datastore/{store}/groups endpoint.
type BackupGroup struct {
	// BackupType is "vm", "ct" or "host".
	BackupType string `json:"backup-type"`
	// BackupID is the VM ID, CT ID or hostname.
	BackupID string `json:"backup-id"`
	// BackupCount is the number of snapshots in this group.
	BackupCount uint64 `json:"backup-count"`
	// LastBackup is the unix timestamp of the most recent snapshot.
	LastBackup int64 `json:"last-backup"`
	// Comment is the optional group comment.
	Comment *string `json:"comment,omitempty"`
}

// BackupGroupsResponse is the API envelope for the backup groups endpoint.
type BackupGroupsResponse struct {
	Data []BackupGroup `json:"data"`
}

// Snapshot describes one point-in-time backup, as returned by the
// /admin/datastore/{store}/snapshots endpoint. Optional upstream fields are
// modelled as pointers so absence is distinguishable from a zero value.
type Snapshot struct {
	BackupType string `json:"backup-type"`
	BackupID   string `json:"backup-id"`
	// BackupTime is the snapshot unix timestamp.
	BackupTime int64 `json:"backup-time"`
	// Comment attached to this individual snapshot.
	Comment *string `json:"comment,omitempty"`
	// Size of the snapshot in bytes.
	Size *uint64 `json:"size,omitempty"`
	// Protected reports whether the snapshot is protected from deletion.
	Protected *bool `json:"protected,omitempty"`
	// Verification is the last verification outcome, if any.
	Verification *VerificationStatus `json:"verification,omitempty"`
}

// VerificationStatus describes the verification outcome of a snapshot.
type VerificationStatus struct {
	// State is "ok", "failed", "none", ...
	State string `json:"state"`
	// LastVerify is the unix timestamp of the last verification run.
	LastVerify *int64 `json:"last-verify,omitempty"`
}

// SnapshotsResponse is the API envelope for the snapshots endpoint.
type SnapshotsResponse struct {
	Data []Snapshot `json:"data"`
}

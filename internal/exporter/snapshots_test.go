package exporter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pbsmon/pbs_exporter/internal/models"
)

func snap(backupType, backupID string, backupTime int64, comment string) models.Snapshot {
	s := models.Snapshot{BackupType: backupType, BackupID: backupID, BackupTime: backupTime}
	if comment != "" {
		s.Comment = &comment
	}
	return s
}

func TestBuildCommentIndexKeepsLatest(t *testing.T) {
	index := buildCommentIndex([]models.Snapshot{
		snap("vm", "100", 100, "old"),
		snap("vm", "100", 300, "newest"),
		snap("vm", "100", 200, "middle"),
		snap("ct", "200", 50, "container"),
	})

	assert.Equal(t, "newest", index.comment("vm", "100"))
	assert.Equal(t, "container", index.comment("ct", "200"))
	assert.Equal(t, "", index.comment("vm", "999"))
}

func TestBuildCommentIndexTieKeepsFirstSeen(t *testing.T) {
	index := buildCommentIndex([]models.Snapshot{
		snap("vm", "100", 100, "first"),
		snap("vm", "100", 100, "second"),
	})

	// Equal times never replace: the earliest-seen entry wins for
	// deterministic output.
	assert.Equal(t, "first", index.comment("vm", "100"))
}

func TestCommentIndexMergeIntoSkipsEmpty(t *testing.T) {
	index := buildCommentIndex([]models.Snapshot{
		snap("vm", "100", 100, "nightly"),
		snap("vm", "200", 100, ""),
	})

	taskComments := make(map[string]string)
	index.mergeInto(taskComments, "store1")

	assert.Equal(t, map[string]string{"store1:vm/100": "nightly"}, taskComments)
}

func TestProjectSnapshotsGroupsSortedIndependently(t *testing.T) {
	// Interleaved input across two groups; each group is limited
	// separately.
	snapshots := []models.Snapshot{
		snap("vm", "200", 10, ""),
		snap("vm", "100", 30, ""),
		snap("vm", "200", 20, ""),
		snap("vm", "100", 40, ""),
		snap("vm", "100", 20, ""),
	}

	registry := newBareRegistry(t)
	registry.snapshotHistoryLimit = 2
	registry.projectSnapshots("store1", snapshots, buildCommentIndex(snapshots))

	// vm/100 keeps 40 and 30, vm/200 keeps both of its snapshots.
	assert.Equal(t, 4, testutil.CollectAndCount(registry.snapshotInfo))
	assert.Equal(t, 40.0, testutil.ToFloat64(
		registry.snapshotInfo.WithLabelValues("store1", "vm", "100", "", "40")))
	assert.Equal(t, 30.0, testutil.ToFloat64(
		registry.snapshotInfo.WithLabelValues("store1", "vm", "100", "", "30")))
	assert.Equal(t, 20.0, testutil.ToFloat64(
		registry.snapshotInfo.WithLabelValues("store1", "vm", "200", "", "20")))
}

func TestProjectSnapshotsVerificationStates(t *testing.T) {
	lastVerify := int64(500)
	failed := models.Snapshot{
		BackupType: "vm", BackupID: "100", BackupTime: 100,
		Verification: &models.VerificationStatus{State: "failed", LastVerify: &lastVerify},
	}
	ok := models.Snapshot{
		BackupType: "vm", BackupID: "200", BackupTime: 100,
		Verification: &models.VerificationStatus{State: "ok", LastVerify: &lastVerify},
	}
	none := models.Snapshot{BackupType: "vm", BackupID: "300", BackupTime: 100}

	snapshots := []models.Snapshot{failed, ok, none}
	registry := newBareRegistry(t)
	registry.projectSnapshots("store1", snapshots, buildCommentIndex(snapshots))

	assert.Equal(t, 0.0, testutil.ToFloat64(
		registry.snapshotVerified.WithLabelValues("store1", "vm", "100", "", "100")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		registry.snapshotVerified.WithLabelValues("store1", "vm", "200", "", "100")))
	assert.Equal(t, 0.0, testutil.ToFloat64(
		registry.snapshotVerified.WithLabelValues("store1", "vm", "300", "", "100")))

	// Only the "ok" verification contributes a verification timestamp.
	assert.Equal(t, 1, testutil.CollectAndCount(registry.snapshotVerificationTimestamp))
	assert.Equal(t, 500.0, testutil.ToFloat64(
		registry.snapshotVerificationTimestamp.WithLabelValues("store1", "vm", "200", "", "100")))

	// Size defaults to 0 when absent, with the verified outcome as label.
	assert.Equal(t, 0.0, testutil.ToFloat64(
		registry.snapshotSizeBytes.WithLabelValues("store1", "vm", "200", "", "100", "true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(
		registry.snapshotSizeBytes.WithLabelValues("store1", "vm", "100", "", "100", "false")))
}

func TestProjectBackupGroupsUsesIndexComment(t *testing.T) {
	// The group payload carries its own comment, but the label comes from
	// the latest snapshot so group and snapshot families stay joinable.
	groupComment := "stale group comment"
	snapshots := []models.Snapshot{snap("vm", "100", 100, "fresh")}

	registry := newBareRegistry(t)
	registry.projectBackupGroups("store1", []models.BackupGroup{
		{BackupType: "vm", BackupID: "100", BackupCount: 5, LastBackup: 100, Comment: &groupComment},
		{BackupType: "ct", BackupID: "300", BackupCount: 1, LastBackup: 50},
	}, buildCommentIndex(snapshots))

	assert.Equal(t, 5.0, testutil.ToFloat64(
		registry.snapshotCount.WithLabelValues("store1", "vm", "100", "fresh")))
	assert.Equal(t, 100.0, testutil.ToFloat64(
		registry.snapshotLastTimestampSeconds.WithLabelValues("store1", "vm", "100", "fresh")))

	// No snapshots for ct/300: the comment label defaults to empty.
	assert.Equal(t, 1.0, testutil.ToFloat64(
		registry.snapshotCount.WithLabelValues("store1", "ct", "300", "")))
}

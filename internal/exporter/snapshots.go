package exporter

import (
	"sort"
	"strconv"

	"github.com/pbsmon/pbs_exporter/internal/logging"
	"github.com/pbsmon/pbs_exporter/internal/models"
	"github.com/pbsmon/pbs_exporter/internal/utils"
)

// groupKey identifies a backup series within one datastore.
type groupKey struct {
	backupType string
	backupID   string
}

// commentEntry holds the backup time and comment of the latest snapshot
// seen so far for a group. An absent comment is stored as "".
type commentEntry struct {
	time    int64
	comment string
}

// commentIndex maps each backup group to the comment of its most recent
// snapshot. Built fresh from one datastore's snapshot list every cycle and
// discarded afterwards.
type commentIndex map[groupKey]commentEntry

// buildCommentIndex walks the snapshot list and keeps, per group, the
// (time, comment) pair with the strictly greatest backup time. A snapshot
// whose time equals the stored entry's time does not replace it, so the
// earliest-seen snapshot wins ties and the result is deterministic for any
// input order.
func buildCommentIndex(snapshots []models.Snapshot) commentIndex {
	index := make(commentIndex)
	for _, snap := range snapshots {
		key := groupKey{backupType: snap.BackupType, backupID: snap.BackupID}
		comment := ""
		if snap.Comment != nil {
			comment = *snap.Comment
		}
		entry, exists := index[key]
		if !exists || snap.BackupTime > entry.time {
			index[key] = commentEntry{time: snap.BackupTime, comment: comment}
		}
	}
	return index
}

// mergeInto copies non-empty comments into the cross-datastore task comment
// map under the synthesized worker-id key "{datastore}:{type}/{id}", the
// format PBS uses for backup worker IDs.
func (idx commentIndex) mergeInto(taskComments map[string]string, datastore string) {
	for key, entry := range idx {
		if entry.comment == "" {
			continue
		}
		taskComments[datastore+":"+key.backupType+"/"+key.backupID] = entry.comment
	}
}

// comment returns the group's latest-snapshot comment, or "" when the group
// is not in the index.
func (idx commentIndex) comment(backupType, backupID string) string {
	return idx[groupKey{backupType: backupType, backupID: backupID}].comment
}

// projectSnapshots populates the five per-snapshot gauge families for one
// datastore. Snapshots are sorted by (type asc, id asc, time desc) so each
// group appears contiguously with its newest snapshot first, then at most
// snapshotHistoryLimit snapshots per group are emitted (0 = unlimited).
//
// Every snapshot in a group carries the group's latest-snapshot comment as
// its comment label, not its own, so the whole series shares one label
// identity.
func (r *PbsRegistry) projectSnapshots(datastore string, snapshots []models.Snapshot, index commentIndex) {
	sorted := make([]models.Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BackupType != b.BackupType {
			return a.BackupType < b.BackupType
		}
		if a.BackupID != b.BackupID {
			return a.BackupID < b.BackupID
		}
		return a.BackupTime > b.BackupTime
	})

	exposed := 0
	var current groupKey
	groupCount := 0

	for _, snap := range sorted {
		key := groupKey{backupType: snap.BackupType, backupID: snap.BackupID}
		if key != current {
			current = key
			groupCount = 0
		}
		if r.snapshotHistoryLimit > 0 && groupCount >= r.snapshotHistoryLimit {
			continue
		}
		groupCount++
		exposed++

		comment := utils.TruncateLabel(index.comment(snap.BackupType, snap.BackupID))
		timestamp := strconv.FormatInt(snap.BackupTime, 10)

		r.snapshotInfo.WithLabelValues(
			datastore, snap.BackupType, snap.BackupID, comment, timestamp,
		).Set(float64(snap.BackupTime))

		verified := 0.0
		verifiedLabel := labelFalse
		if snap.Verification != nil && snap.Verification.State == stateOK {
			verified = 1.0
			verifiedLabel = labelTrue
			if snap.Verification.LastVerify != nil {
				r.snapshotVerificationTimestamp.WithLabelValues(
					datastore, snap.BackupType, snap.BackupID, comment, timestamp,
				).Set(float64(*snap.Verification.LastVerify))
			}
		}
		r.snapshotVerified.WithLabelValues(
			datastore, snap.BackupType, snap.BackupID, comment, timestamp,
		).Set(verified)

		size := uint64(0)
		if snap.Size != nil {
			size = *snap.Size
		}
		r.snapshotSizeBytes.WithLabelValues(
			datastore, snap.BackupType, snap.BackupID, comment, timestamp, verifiedLabel,
		).Set(float64(size))

		protected := 0.0
		if snap.Protected != nil && *snap.Protected {
			protected = 1.0
		}
		r.snapshotProtected.WithLabelValues(
			datastore, snap.BackupType, snap.BackupID, comment, timestamp,
		).Set(protected)
	}

	logging.LogInfo("datastore " + datastore + ": exposing " +
		strconv.Itoa(exposed) + " of " + strconv.Itoa(len(snapshots)) + " snapshots")
}

// projectBackupGroups populates the group count and last-timestamp families
// for one datastore. The comment label is sourced from the comment index,
// not the group payload, so it always matches the labels the per-snapshot
// families carry for the same series.
func (r *PbsRegistry) projectBackupGroups(datastore string, groups []models.BackupGroup, index commentIndex) {
	for _, group := range groups {
		comment := utils.TruncateLabel(index.comment(group.BackupType, group.BackupID))
		r.snapshotCount.WithLabelValues(
			datastore, group.BackupType, group.BackupID, comment,
		).Set(float64(group.BackupCount))
		r.snapshotLastTimestampSeconds.WithLabelValues(
			datastore, group.BackupType, group.BackupID, comment,
		).Set(float64(group.LastBackup))
	}
}

package exporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbsmon/pbs_exporter/internal/logging"
	"github.com/pbsmon/pbs_exporter/internal/models"
)

// collectCycle performs one reset-then-repopulate pass over all metric
// families. Caller holds r.mu.
//
// Fetch failure policy:
//   - node status, datastore usage, version: fatal, abort the cycle
//   - snapshots, backup groups, tasks, GC status, tape drives: logged,
//     the affected metrics stay at their reset state, the cycle continues
func (r *PbsRegistry) collectCycle(ctx context.Context) error {
	r.resetAll()

	node, err := r.client.FetchNodeStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch node status: %w", err)
	}
	r.projectNodeStatus(node)

	datastores, err := r.client.FetchDatastoreUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch datastore usage: %w", err)
	}
	r.projectDatastoreUsage(datastores)

	// Comments harvested from snapshots across all datastores, keyed
	// "{datastore}:{type}/{id}", consumed by the task projection below.
	taskComments := make(map[string]string)

	for _, ds := range datastores {
		var index commentIndex

		snapshots, err := r.client.FetchSnapshots(ctx, ds.Store)
		if err != nil {
			logging.LogError(fmt.Sprintf("failed to fetch snapshots for datastore %s: %v", ds.Store, err))
		} else {
			index = buildCommentIndex(snapshots)
			index.mergeInto(taskComments, ds.Store)
			r.projectSnapshots(ds.Store, snapshots, index)
		}

		groups, err := r.client.FetchBackupGroups(ctx, ds.Store)
		if err != nil {
			logging.LogError(fmt.Sprintf("failed to fetch backup groups for datastore %s: %v", ds.Store, err))
			continue
		}
		r.projectBackupGroups(ds.Store, groups, index)
	}

	tasks, err := r.client.FetchTasks(ctx, r.taskLimit)
	if err != nil {
		logging.LogError(fmt.Sprintf("failed to fetch tasks: %v", err))
	} else {
		r.projectTasks(tasks, taskComments)
	}

	for _, ds := range datastores {
		gc, err := r.client.FetchGcStatus(ctx, ds.Store)
		if err != nil {
			logging.LogError(fmt.Sprintf("failed to fetch GC status for datastore %s: %v", ds.Store, err))
			continue
		}
		r.projectGcStatus(ds.Store, gc)
	}

	drives, err := r.client.FetchTapeDrives(ctx)
	if err != nil {
		logging.LogError(fmt.Sprintf("failed to fetch tape drives: %v", err))
	} else {
		r.projectTapeDrives(drives)
	}

	version, err := r.client.FetchVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch version: %w", err)
	}
	r.projectVersion(version)

	return nil
}

func (r *PbsRegistry) projectNodeStatus(node *models.NodeStatus) {
	r.hostCPUUsage.Set(node.CPU)
	r.hostIOWait.Set(node.Wait)
	r.hostLoad1.Set(node.LoadAvg[0])
	r.hostLoad5.Set(node.LoadAvg[1])
	r.hostLoad15.Set(node.LoadAvg[2])
	r.hostMemoryUsedBytes.Set(float64(node.Memory.Used))
	r.hostMemoryTotalBytes.Set(float64(node.Memory.Total))
	r.hostMemoryFreeBytes.Set(float64(node.Memory.Free))
	r.hostSwapUsedBytes.Set(float64(node.Swap.Used))
	r.hostSwapTotalBytes.Set(float64(node.Swap.Total))
	r.hostSwapFreeBytes.Set(float64(node.Swap.Free))
	r.hostRootfsUsedBytes.Set(float64(node.Root.Used))
	r.hostRootfsTotalBytes.Set(float64(node.Root.Total))
	r.hostRootfsAvailBytes.Set(float64(node.Root.Avail))
	r.hostUptimeSeconds.Set(float64(node.Uptime))
}

func (r *PbsRegistry) projectDatastoreUsage(datastores []models.DatastoreUsage) {
	for _, ds := range datastores {
		r.datastoreTotalBytes.WithLabelValues(ds.Store).Set(float64(ds.Total))
		r.datastoreUsedBytes.WithLabelValues(ds.Store).Set(float64(ds.Used))
		r.datastoreAvailableBytes.WithLabelValues(ds.Store).Set(float64(ds.Avail))
	}
}

// projectGcStatus updates the GC family for one datastore. Absent optional
// fields leave the corresponding instrument at its reset state rather than
// writing a fabricated zero.
func (r *PbsRegistry) projectGcStatus(datastore string, gc *models.GcStatus) {
	if gc.DiskBytes != nil {
		r.gcDiskBytes.WithLabelValues(datastore).Set(float64(*gc.DiskBytes))
	}
	if gc.RemovedBytes != nil {
		r.gcRemovedBytes.WithLabelValues(datastore).Set(float64(*gc.RemovedBytes))
	}
	if gc.PendingBytes != nil {
		r.gcPendingBytes.WithLabelValues(datastore).Set(float64(*gc.PendingBytes))
	}
	if gc.LastRunEndtime != nil {
		r.gcLastRunTimestamp.WithLabelValues(datastore).Set(float64(*gc.LastRunEndtime))
	}
	if gc.Duration != nil {
		r.gcDurationSeconds.WithLabelValues(datastore).Set(*gc.Duration)
	}
	if gc.LastRunState != nil {
		status := 0.0
		if strings.EqualFold(*gc.LastRunState, stateOK) {
			status = 1.0
		}
		r.gcStatus.WithLabelValues(datastore).Set(status)
	}
}

func (r *PbsRegistry) projectTapeDrives(drives []models.TapeDrive) {
	for _, drive := range drives {
		vendor := labelUnknown
		if drive.Vendor != nil {
			vendor = *drive.Vendor
		}
		model := labelUnknown
		if drive.Model != nil {
			model = *drive.Model
		}
		serial := labelUnknown
		if drive.Serial != nil {
			serial = *drive.Serial
		}
		r.tapeDriveInfo.WithLabelValues(drive.Name, vendor, model, serial).Set(1)
	}
	r.tapeDriveAvailable.Set(float64(len(drives)))
}

func (r *PbsRegistry) projectVersion(version *models.VersionInfo) {
	r.version.WithLabelValues(version.Version, version.Release, version.RepoID).Set(1)
}

package exporter

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbsmon/pbs_exporter/internal/telemetry"
)

// Label-value literals shared across projections.
const (
	labelUnknown = "unknown"
	labelTrue    = "true"
	labelFalse   = "false"
	stateOK      = "ok"
)

// RegistryOption configures optional PbsRegistry settings.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	tracerProvider trace.TracerProvider
}

// WithRegistryTracerProvider sets the TracerProvider for the registry.
// If not provided, tracing operations use a noop provider (no overhead).
func WithRegistryTracerProvider(tp trace.TracerProvider) RegistryOption {
	return func(o *registryOptions) {
		o.tracerProvider = tp
	}
}

// PbsRegistry owns every metric instrument the exporter exposes and the
// projection logic that repopulates them from PBS API payloads on each
// collection cycle. One instance lives for the whole process.
//
// Concurrency: a single mutex serializes Collect and Render. A scrape's
// reset-then-repopulate sequence therefore can never interleave with
// another scrape's render, so a torn (partially reset) state is never
// observable.
type PbsRegistry struct {
	mu       sync.Mutex
	client   *PbsClient
	registry *prometheus.Registry
	tracing  *TracerWrapper

	snapshotHistoryLimit int
	taskLimit            int

	// Exporter state
	up prometheus.Gauge

	// Host metrics
	hostCPUUsage         prometheus.Gauge
	hostIOWait           prometheus.Gauge
	hostLoad1            prometheus.Gauge
	hostLoad5            prometheus.Gauge
	hostLoad15           prometheus.Gauge
	hostMemoryUsedBytes  prometheus.Gauge
	hostMemoryTotalBytes prometheus.Gauge
	hostMemoryFreeBytes  prometheus.Gauge
	hostSwapUsedBytes    prometheus.Gauge
	hostSwapTotalBytes   prometheus.Gauge
	hostSwapFreeBytes    prometheus.Gauge
	hostRootfsUsedBytes  prometheus.Gauge
	hostRootfsTotalBytes prometheus.Gauge
	hostRootfsAvailBytes prometheus.Gauge
	hostUptimeSeconds    prometheus.Gauge

	// Datastore metrics
	datastoreTotalBytes     *prometheus.GaugeVec
	datastoreUsedBytes      *prometheus.GaugeVec
	datastoreAvailableBytes *prometheus.GaugeVec

	// Backup group metrics
	snapshotCount                *prometheus.GaugeVec
	snapshotLastTimestampSeconds *prometheus.GaugeVec

	// Individual snapshot metrics
	snapshotInfo                  *prometheus.GaugeVec
	snapshotSizeBytes             *prometheus.GaugeVec
	snapshotVerified              *prometheus.GaugeVec
	snapshotVerificationTimestamp *prometheus.GaugeVec
	snapshotProtected             *prometheus.GaugeVec

	// Task metrics
	taskTotal            *prometheus.GaugeVec
	taskDurationSeconds  *prometheus.GaugeVec
	taskLastRunTimestamp *prometheus.GaugeVec
	taskRunning          *prometheus.GaugeVec

	// GC metrics
	gcDiskBytes        *prometheus.GaugeVec
	gcRemovedBytes     *prometheus.GaugeVec
	gcPendingBytes     *prometheus.GaugeVec
	gcLastRunTimestamp *prometheus.GaugeVec
	gcDurationSeconds  *prometheus.GaugeVec
	gcStatus           *prometheus.GaugeVec

	// Tape metrics
	tapeDriveInfo      *prometheus.GaugeVec
	tapeDriveAvailable prometheus.Gauge

	// Version info
	version *prometheus.GaugeVec
}

// NewPbsRegistry creates the metric registry, declaring and registering
// every instrument exactly once. It fails fast if any registration is
// invalid (duplicate name, malformed label set); no partially constructed
// registry is ever returned.
//
// snapshotHistoryLimit bounds the number of snapshots exposed per backup
// group (0 = unlimited). taskLimit bounds the task fetch per cycle.
func NewPbsRegistry(client *PbsClient, snapshotHistoryLimit, taskLimit int, opts ...RegistryOption) (*PbsRegistry, error) {
	options := registryOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	}

	r := &PbsRegistry{
		client:               client,
		registry:             prometheus.NewRegistry(),
		tracing:              NewTracerWrapper(options.tracerProvider, "pbs-exporter/registry"),
		snapshotHistoryLimit: snapshotHistoryLimit,
		taskLimit:            taskLimit,

		up: gauge("pbs_up",
			"Whether the last scrape of PBS was successful (1 = success, 0 = failure)"),

		hostCPUUsage:         gauge("pbs_host_cpu_usage", "CPU usage of the PBS host (fraction of 1.0)"),
		hostIOWait:           gauge("pbs_host_io_wait", "CPU I/O wait proportion (fraction of 1.0)"),
		hostLoad1:            gauge("pbs_host_load1", "1-minute load average"),
		hostLoad5:            gauge("pbs_host_load5", "5-minute load average"),
		hostLoad15:           gauge("pbs_host_load15", "15-minute load average"),
		hostMemoryUsedBytes:  gauge("pbs_host_memory_used_bytes", "Used RAM on PBS host in bytes"),
		hostMemoryTotalBytes: gauge("pbs_host_memory_total_bytes", "Total RAM on PBS host in bytes"),
		hostMemoryFreeBytes:  gauge("pbs_host_memory_free_bytes", "Free RAM on PBS host in bytes"),
		hostSwapUsedBytes:    gauge("pbs_host_swap_used_bytes", "Used swap space in bytes"),
		hostSwapTotalBytes:   gauge("pbs_host_swap_total_bytes", "Total swap space in bytes"),
		hostSwapFreeBytes:    gauge("pbs_host_swap_free_bytes", "Free swap space in bytes"),
		hostRootfsUsedBytes:  gauge("pbs_host_rootfs_used_bytes", "Used bytes on root filesystem"),
		hostRootfsTotalBytes: gauge("pbs_host_rootfs_total_bytes", "Total bytes on root filesystem"),
		hostRootfsAvailBytes: gauge("pbs_host_rootfs_avail_bytes", "Available bytes on root filesystem"),
		hostUptimeSeconds:    gauge("pbs_host_uptime_seconds", "Uptime of PBS host in seconds"),

		datastoreTotalBytes: gaugeVec("pbs_datastore_total_bytes",
			"Total size of datastore in bytes", "datastore"),
		datastoreUsedBytes: gaugeVec("pbs_datastore_used_bytes",
			"Used bytes in datastore", "datastore"),
		datastoreAvailableBytes: gaugeVec("pbs_datastore_available_bytes",
			"Available bytes in datastore", "datastore"),

		snapshotCount: gaugeVec("pbs_snapshot_count",
			"Number of backup snapshots",
			"datastore", "backup_type", "backup_id", "comment"),
		snapshotLastTimestampSeconds: gaugeVec("pbs_snapshot_last_timestamp_seconds",
			"Unix timestamp of last backup",
			"datastore", "backup_type", "backup_id", "comment"),

		snapshotInfo: gaugeVec("pbs_snapshot_info",
			"Individual snapshot information with timestamp as value",
			"datastore", "backup_type", "backup_id", "comment", "timestamp"),
		snapshotSizeBytes: gaugeVec("pbs_snapshot_size_bytes",
			"Size of individual snapshot in bytes",
			"datastore", "backup_type", "backup_id", "comment", "timestamp", "verified"),
		snapshotVerified: gaugeVec("pbs_snapshot_verified",
			"Snapshot verification status (1=ok, 0=failed/unknown)",
			"datastore", "backup_type", "backup_id", "comment", "timestamp"),
		snapshotVerificationTimestamp: gaugeVec("pbs_snapshot_verification_timestamp_seconds",
			"Timestamp of last verification in seconds",
			"datastore", "backup_type", "backup_id", "comment", "timestamp"),
		snapshotProtected: gaugeVec("pbs_snapshot_protected",
			"Snapshot protection status (1=protected, 0=not protected)",
			"datastore", "backup_type", "backup_id", "comment", "timestamp"),

		taskTotal: gaugeVec("pbs_task_total",
			"Total number of tasks (by worker type/status)",
			"worker_type", "status", "comment"),
		taskDurationSeconds: gaugeVec("pbs_task_duration_seconds",
			"Task duration in seconds",
			"worker_type", "status", "worker_id", "comment"),
		taskLastRunTimestamp: gaugeVec("pbs_task_last_run_timestamp",
			"Last run timestamp for task type", "worker_type"),
		taskRunning: gaugeVec("pbs_task_running",
			"Currently running tasks", "worker_type", "comment"),

		gcDiskBytes: gaugeVec("pbs_gc_disk_bytes",
			"Total bytes on disk", "datastore"),
		gcRemovedBytes: gaugeVec("pbs_gc_removed_bytes",
			"Bytes reclaimed in last GC", "datastore"),
		gcPendingBytes: gaugeVec("pbs_gc_pending_bytes",
			"Bytes that can be reclaimed by GC", "datastore"),
		gcLastRunTimestamp: gaugeVec("pbs_gc_last_run_timestamp",
			"Last GC run completion timestamp", "datastore"),
		gcDurationSeconds: gaugeVec("pbs_gc_duration_seconds",
			"Last GC duration in seconds", "datastore"),
		gcStatus: gaugeVec("pbs_gc_status",
			"Last GC status (1=OK, 0=ERROR)", "datastore"),

		tapeDriveInfo: gaugeVec("pbs_tape_drive_info",
			"Tape drive information", "name", "vendor", "model", "serial"),
		tapeDriveAvailable: gauge("pbs_tape_drive_available",
			"Number of available tape drives"),

		version: gaugeVec("pbs_version",
			"PBS version information", "version", "release", "repoid"),
	}

	if err := r.registerAll(); err != nil {
		return nil, err
	}

	return r, nil
}

// registerAll registers every instrument with the underlying registry,
// returning the first registration failure.
func (r *PbsRegistry) registerAll() error {
	collectors := []prometheus.Collector{
		r.up,
		r.hostCPUUsage, r.hostIOWait,
		r.hostLoad1, r.hostLoad5, r.hostLoad15,
		r.hostMemoryUsedBytes, r.hostMemoryTotalBytes, r.hostMemoryFreeBytes,
		r.hostSwapUsedBytes, r.hostSwapTotalBytes, r.hostSwapFreeBytes,
		r.hostRootfsUsedBytes, r.hostRootfsTotalBytes, r.hostRootfsAvailBytes,
		r.hostUptimeSeconds,
		r.datastoreTotalBytes, r.datastoreUsedBytes, r.datastoreAvailableBytes,
		r.snapshotCount, r.snapshotLastTimestampSeconds,
		r.snapshotInfo, r.snapshotSizeBytes, r.snapshotVerified,
		r.snapshotVerificationTimestamp, r.snapshotProtected,
		r.taskTotal, r.taskDurationSeconds, r.taskLastRunTimestamp, r.taskRunning,
		r.gcDiskBytes, r.gcRemovedBytes, r.gcPendingBytes,
		r.gcLastRunTimestamp, r.gcDurationSeconds, r.gcStatus,
		r.tapeDriveInfo, r.tapeDriveAvailable,
		r.version,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// resetAll returns every instrument to a clean state: label-keyed families
// are emptied, scalar gauges zeroed. Called unconditionally at the start of
// every collection cycle so entries from a previous cycle can never survive
// into the next one, even when the cycle fails halfway.
//
// Correctness note: this is the ONLY reset in the cycle. The per-datastore
// projection steps never reset the shared snapshot families; that is safe
// only because "datastore" is part of every per-datastore label key, making
// the label sets of different datastores disjoint.
func (r *PbsRegistry) resetAll() {
	r.up.Set(0) // Set to 1 at the end of a fully successful cycle

	r.hostCPUUsage.Set(0)
	r.hostIOWait.Set(0)
	r.hostLoad1.Set(0)
	r.hostLoad5.Set(0)
	r.hostLoad15.Set(0)
	r.hostMemoryUsedBytes.Set(0)
	r.hostMemoryTotalBytes.Set(0)
	r.hostMemoryFreeBytes.Set(0)
	r.hostSwapUsedBytes.Set(0)
	r.hostSwapTotalBytes.Set(0)
	r.hostSwapFreeBytes.Set(0)
	r.hostRootfsUsedBytes.Set(0)
	r.hostRootfsTotalBytes.Set(0)
	r.hostRootfsAvailBytes.Set(0)
	r.hostUptimeSeconds.Set(0)

	r.datastoreTotalBytes.Reset()
	r.datastoreUsedBytes.Reset()
	r.datastoreAvailableBytes.Reset()

	r.snapshotCount.Reset()
	r.snapshotLastTimestampSeconds.Reset()
	r.snapshotInfo.Reset()
	r.snapshotSizeBytes.Reset()
	r.snapshotVerified.Reset()
	r.snapshotVerificationTimestamp.Reset()
	r.snapshotProtected.Reset()

	r.taskTotal.Reset()
	r.taskDurationSeconds.Reset()
	r.taskLastRunTimestamp.Reset()
	r.taskRunning.Reset()

	r.gcDiskBytes.Reset()
	r.gcRemovedBytes.Reset()
	r.gcPendingBytes.Reset()
	r.gcLastRunTimestamp.Reset()
	r.gcDurationSeconds.Reset()
	r.gcStatus.Reset()

	r.tapeDriveInfo.Reset()
	r.tapeDriveAvailable.Set(0)

	r.version.Reset()
}

// Collect runs one full fetch/project cycle against PBS, updating every
// instrument. On any foundational fetch failure (node status, datastore
// usage, version) the cycle aborts with pbs_up left at 0 and the error
// returned; every instrument is still in its post-reset state plus whatever
// was repopulated before the failure. Auxiliary fetch failures are logged
// and degrade the affected metrics only.
func (r *PbsRegistry) Collect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scrapeStart := time.Now()
	ctx, span := r.tracing.StartSpan(ctx, "prometheus.scrape", trace.SpanKindServer)
	defer span.End()

	err := r.collectCycle(ctx)

	durationMS := float64(time.Since(scrapeStart).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Metric collection failed")
		span.SetAttributes(
			attribute.Float64(telemetry.AttrScrapeDurationMS, durationMS),
			attribute.String(telemetry.AttrScrapeStatus, "failure"),
		)
		return err
	}

	r.up.Set(1)
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(
		attribute.Float64(telemetry.AttrScrapeDurationMS, durationMS),
		attribute.String(telemetry.AttrScrapeStatus, "success"),
	)
	return nil
}

// Render gathers the current instrument state and encodes it in the
// Prometheus text exposition format. It is safe to call even when the
// preceding Collect returned an error: encoding always succeeds against
// whatever state exists, including the all-zeroed post-reset state.
func (r *PbsRegistry) Render() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return nil, fmt.Errorf("failed to encode metrics: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// SetClient swaps the PBS API client, e.g. after a config reload changed
// the endpoint or credentials. The caller owns closing the old client.
func (r *PbsRegistry) SetClient(client *PbsClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = client
}

// Client returns the current PBS API client.
func (r *PbsRegistry) Client() *PbsClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

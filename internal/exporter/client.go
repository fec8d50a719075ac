// Package exporter provides the PBS API client and the Prometheus metric
// registry for the PBS exporter. It handles API communication, the
// per-scrape collection cycle, and metric exposition.
package exporter

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pbsmon/pbs_exporter/internal/logging"
	"github.com/pbsmon/pbs_exporter/internal/models"
	"github.com/pbsmon/pbs_exporter/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Retry configuration
	retryCount       = 3                // Number of retry attempts
	retryWaitTime    = 1 * time.Second  // Initial wait time between retries
	retryMaxWaitTime = 10 * time.Second // Maximum wait time between retries

	// Connection pool configuration
	maxIdleConns        = 100              // Total idle connections across all hosts
	maxIdleConnsPerHost = 20               // Idle connections per host (default is 2, too low)
	idleConnTimeout     = 90 * time.Second // Timeout for idle connections

	httpContentTypeHeader = "Content-Type"
)

// HTTP header names used in PBS API requests.
const (
	HeaderAuthorization = "Authorization"
)

// ClientOption configures optional PbsClient settings.
type ClientOption func(*clientOptions)

type clientOptions struct {
	tracerProvider trace.TracerProvider
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		tracerProvider: nil, // Will use noop via TracerWrapper
	}
}

// WithTracerProvider sets the TracerProvider for distributed tracing.
// If not provided, tracing operations use a noop provider (no overhead).
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(o *clientOptions) {
		o.tracerProvider = tp
	}
}

// PbsClient handles HTTP communication with the Proxmox Backup Server API.
// It manages TLS configuration, token authentication, and provides typed
// fetch operations for every endpoint the collection cycle consumes.
type PbsClient struct {
	client     *resty.Client  // HTTP client with TLS configuration
	baseURL    string         // PBS API base URL without trailing slash
	authHeader string         // Precomputed PBSAPIToken authorization header
	tracing    *TracerWrapper // Nil-safe OpenTelemetry tracer wrapper

	// Connection tracking for graceful shutdown
	mu         sync.Mutex    // Protects closed and closeChan
	activeReqs int32         // Count of active requests (atomic)
	closed     bool          // Whether Close() has been called
	closeChan  chan struct{} // Signaled when all requests complete
}

// NewPbsClient creates a new PBS API client with the provided configuration.
// It initializes the HTTP client with TLS settings, request timeout, retry
// with exponential backoff, and a tuned connection pool.
//
// Authentication uses the PBS API token scheme:
//
//	Authorization: PBSAPIToken=<tokenId>:<tokenSecret>
//
// Example:
//
//	client := NewPbsClient(cfg)                          // Without tracing
//	client := NewPbsClient(cfg, WithTracerProvider(tp))  // With tracing
func NewPbsClient(cfg models.Config, opts ...ClientOption) *PbsClient {
	options := defaultClientOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if cfg.PbsServer.InsecureSkipVerify {
		log.Error("SECURITY WARNING: TLS certificate verification disabled - this is insecure for production use")
	}

	client := resty.New().
		SetTimeout(cfg.GetTimeout()).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on network errors
			if err != nil {
				return true
			}
			// Retry on rate limiting (429) and server errors (5xx)
			return r.StatusCode() == http.StatusTooManyRequests ||
				r.StatusCode() >= 500
		})

	client.AddRetryAfterErrorCondition()

	// Configure connection pool and TLS in http.Transport for unified config
	httpClient := client.GetClient()
	httpClient.Transport = &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.PbsServer.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}

	tracing := NewTracerWrapper(options.tracerProvider, "pbs-exporter/http-client")

	return &PbsClient{
		client:     client,
		baseURL:    cfg.GetPbsBaseURL(),
		authHeader: fmt.Sprintf("PBSAPIToken=%s:%s", cfg.PbsServer.TokenID, cfg.PbsServer.TokenSecret),
		tracing:    tracing,
	}
}

// fetchJSON sends an HTTP GET request to the given API path and unmarshals
// the JSON response into target. It attaches the PBSAPIToken authorization
// header, records a client span for the request, and translates common
// failure modes (401, non-JSON body, unmarshal failure) into descriptive
// errors.
//
// SECURITY: The token secret is carried in the Authorization header and is
// never logged or included in error messages.
func (c *PbsClient) fetchJSON(ctx context.Context, path string, target interface{}) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	atomic.AddInt32(&c.activeReqs, 1)
	c.mu.Unlock()

	defer func() {
		if atomic.AddInt32(&c.activeReqs, -1) == 0 {
			c.mu.Lock()
			if c.closed && c.closeChan != nil {
				close(c.closeChan)
				c.closeChan = nil
			}
			c.mu.Unlock()
		}
	}()

	ctx, span := c.tracing.StartSpan(ctx, "http.request", trace.SpanKindClient)
	defer span.End()

	reqURL := c.baseURL + path
	startTime := time.Now()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(HeaderAuthorization, c.authHeader).
		Get(reqURL)

	duration := time.Since(startTime)

	if err != nil {
		c.recordError(span, err)
		return fmt.Errorf("HTTP request to %s failed: %w", reqURL, err)
	}

	c.recordHTTPAttributes(span, http.MethodGet, reqURL, resp.StatusCode(), int64(len(resp.Body())), duration)

	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnauthorized {
			errMsg := fmt.Sprintf(telemetry.ErrAuthFailedTemplate, reqURL)
			logging.LogError(errMsg)
			err := fmt.Errorf("%s", errMsg)
			c.recordError(span, err)
			return err
		}
		contentTypeValue := resp.Header().Get(httpContentTypeHeader)
		err := fmt.Errorf("HTTP request failed: url=%s, status=%d (%s), content-type=%s",
			reqURL, resp.StatusCode(), resp.Status(), contentTypeValue)
		c.recordError(span, err)
		return err
	}

	// Validate Content-Type before attempting to unmarshal
	contentType := resp.Header().Get(httpContentTypeHeader)
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		bodyPreview := string(resp.Body())
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		errMsg := fmt.Sprintf(telemetry.ErrNonJSONResponseTemplate, contentType, reqURL, bodyPreview)
		logging.LogError(errMsg)
		err := fmt.Errorf("server returned %s instead of JSON: url=%s, status=%d, preview=%s",
			contentType, reqURL, resp.StatusCode(), bodyPreview)
		c.recordError(span, err)
		return err
	}

	if err := json.Unmarshal(resp.Body(), target); err != nil {
		bodyPreview := string(resp.Body())
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		unmarshalErr := fmt.Errorf("failed to unmarshal JSON response: url=%s, status=%d, error=%w, preview=%s",
			reqURL, resp.StatusCode(), err, bodyPreview)
		c.recordError(span, unmarshalErr)
		return unmarshalErr
	}

	span.SetStatus(codes.Ok, "Request completed successfully")
	return nil
}

// FetchNodeStatus retrieves host-level status (CPU, memory, load, uptime)
// from the PBS node status endpoint.
func (c *PbsClient) FetchNodeStatus(ctx context.Context) (*models.NodeStatus, error) {
	var resp models.NodeStatusResponse
	if err := c.fetchJSON(ctx, "/api2/json/nodes/localhost/status", &resp); err != nil {
		return nil, fmt.Errorf("fetch node status: %w", err)
	}
	return &resp.Data, nil
}

// FetchDatastoreUsage retrieves capacity information for every datastore.
func (c *PbsClient) FetchDatastoreUsage(ctx context.Context) ([]models.DatastoreUsage, error) {
	var resp models.DatastoreUsageResponse
	if err := c.fetchJSON(ctx, "/api2/json/status/datastore-usage", &resp); err != nil {
		return nil, fmt.Errorf("fetch datastore usage: %w", err)
	}
	return resp.Data, nil
}

// FetchBackupGroups retrieves the backup groups of one datastore.
func (c *PbsClient) FetchBackupGroups(ctx context.Context, datastore string) ([]models.BackupGroup, error) {
	path := fmt.Sprintf("/api2/json/admin/datastore/%s/groups", url.PathEscape(datastore))
	var resp models.BackupGroupsResponse
	if err := c.fetchJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch backup groups for %s: %w", datastore, err)
	}
	return resp.Data, nil
}

// FetchSnapshots retrieves every snapshot of one datastore.
func (c *PbsClient) FetchSnapshots(ctx context.Context, datastore string) ([]models.Snapshot, error) {
	path := fmt.Sprintf("/api2/json/admin/datastore/%s/snapshots", url.PathEscape(datastore))
	var resp models.SnapshotsResponse
	if err := c.fetchJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch snapshots for %s: %w", datastore, err)
	}
	return resp.Data, nil
}

// FetchTasks retrieves the most recent server tasks, bounded by limit.
func (c *PbsClient) FetchTasks(ctx context.Context, limit int) ([]models.Task, error) {
	path := fmt.Sprintf("/api2/json/nodes/localhost/tasks?limit=%d", limit)
	var resp models.TasksResponse
	if err := c.fetchJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return resp.Data, nil
}

// FetchGcStatus retrieves garbage collection status for one datastore.
func (c *PbsClient) FetchGcStatus(ctx context.Context, datastore string) (*models.GcStatus, error) {
	path := fmt.Sprintf("/api2/json/admin/datastore/%s/gc", url.PathEscape(datastore))
	var resp models.GcStatusResponse
	if err := c.fetchJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch GC status for %s: %w", datastore, err)
	}
	return &resp.Data, nil
}

// FetchTapeDrives retrieves the configured tape drives.
func (c *PbsClient) FetchTapeDrives(ctx context.Context) ([]models.TapeDrive, error) {
	var resp models.TapeDrivesResponse
	if err := c.fetchJSON(ctx, "/api2/json/tape/drive", &resp); err != nil {
		return nil, fmt.Errorf("fetch tape drives: %w", err)
	}
	return resp.Data, nil
}

// FetchVersion retrieves PBS version information. Besides populating the
// version metric, this is the cheapest endpoint and doubles as the
// connectivity probe for health checks.
func (c *PbsClient) FetchVersion(ctx context.Context) (*models.VersionInfo, error) {
	var resp models.VersionResponse
	if err := c.fetchJSON(ctx, "/api2/json/version", &resp); err != nil {
		return nil, fmt.Errorf("fetch version: %w", err)
	}
	return &resp.Data, nil
}

// recordHTTPAttributes records HTTP semantic convention attributes on the
// span.
func (c *PbsClient) recordHTTPAttributes(span trace.Span, method, url string, statusCode int, responseSize int64, duration time.Duration) {
	span.SetAttributes(
		attribute.String(telemetry.AttrHTTPMethod, method),
		attribute.String(telemetry.AttrHTTPURL, url),
		attribute.Int(telemetry.AttrHTTPStatusCode, statusCode),
		attribute.Int64(telemetry.AttrHTTPResponseContentLength, responseSize),
		attribute.Float64(telemetry.AttrHTTPDurationMS, float64(duration.Milliseconds())),
	)
}

// recordError records an error on the span and sets the span status to error.
func (c *PbsClient) recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String(telemetry.AttrError, err.Error()),
	)
}

// Close releases resources associated with the HTTP client.
// It waits for active requests to complete (up to 30 seconds)
// before closing connections.
//
// Returns an error if the client is already closed.
func (c *PbsClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.CloseWithContext(ctx)
}

// CloseWithContext releases resources with explicit timeout control.
// Use this when you need custom shutdown timeout behavior.
func (c *PbsClient) CloseWithContext(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client already closed")
	}
	c.closed = true

	activeCount := atomic.LoadInt32(&c.activeReqs)
	if activeCount > 0 {
		c.closeChan = make(chan struct{})
		ch := c.closeChan // Store local reference to avoid race
		c.mu.Unlock()

		select {
		case <-ch:
			log.Debug("All active requests completed during shutdown")
		case <-ctx.Done():
			log.Warnf("Timeout waiting for %d active requests during shutdown", activeCount)
		}
	} else {
		c.mu.Unlock()
	}

	if c.client != nil {
		c.client.GetClient().CloseIdleConnections()
		c.client = nil
	}

	return nil
}

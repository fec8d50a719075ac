// PBS Exporter is a Prometheus exporter for Proxmox Backup Server. On each
// scrape it polls the PBS JSON API and republishes host status, datastore
// usage, backup groups, individual snapshots, tasks, garbage collection
// status, tape drives, and version information as gauge metrics.
//
// Usage:
//
//	pbs_exporter --config config.yaml [--debug]
//
// Configuration is provided via YAML file specifying the listen address,
// the PBS endpoint, and API token credentials. The token secret may also
// come from the PBS_EXPORTER_TOKEN_SECRET environment variable.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pbsmon/pbs_exporter/internal/config"
	"github.com/pbsmon/pbs_exporter/internal/exporter"
	"github.com/pbsmon/pbs_exporter/internal/logging"
	"github.com/pbsmon/pbs_exporter/internal/models"
	"github.com/pbsmon/pbs_exporter/internal/telemetry"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	programName       = "pbs_exporter"
	serviceVersion    = "1.0.0"
	shutdownTimeout   = 10 * time.Second // Maximum time to wait for graceful shutdown
	readHeaderTimeout = 5 * time.Second  // HTTP server read header timeout
)

var (
	configFile string
	debug      bool
)

// Server ties together the HTTP front end, the metric registry, the PBS API
// client, and the OpenTelemetry manager, and owns their lifecycle.
//
// Server errors (such as port binding failures) are communicated through
// ErrorChan() rather than log.Fatal so the caller can still run a graceful
// shutdown.
type Server struct {
	safeCfg          *models.SafeConfig
	httpSrv          *http.Server
	registry         *exporter.PbsRegistry
	health           *exporter.HealthChecker
	telemetryManager *telemetry.Manager // nil if tracing disabled
	tracerProvider   trace.TracerProvider

	// serverErrChan is buffered (capacity 1) so the serve goroutine can
	// report an error even before the main select starts listening.
	serverErrChan chan error
}

// NewServer creates a server instance around the validated configuration.
func NewServer(cfg *models.Config) *Server {
	var telemetryMgr *telemetry.Manager
	if cfg.IsOTelEnabled() {
		telemetryMgr = telemetry.NewManager(telemetry.Config{
			Enabled:        cfg.OpenTelemetry.Enabled,
			Endpoint:       cfg.OpenTelemetry.Endpoint,
			Insecure:       cfg.OpenTelemetry.Insecure,
			SamplingRate:   cfg.OpenTelemetry.SamplingRate,
			ServiceName:    "pbs-exporter",
			ServiceVersion: serviceVersion,
			PbsEndpoint:    cfg.PbsServer.Endpoint,
		})
	}

	return &Server{
		safeCfg:          models.NewSafeConfig(cfg),
		telemetryManager: telemetryMgr,
		serverErrChan:    make(chan error, 1),
	}
}

// Start initializes tracing, builds the PBS client and metric registry, and
// starts the HTTP server in a goroutine.
//
// The server exposes:
//   - the metrics endpoint at the configured URI (default /metrics)
//   - a health check at /health
//   - a landing page at /
func (s *Server) Start() error {
	cfg := s.safeCfg.Get()

	if s.telemetryManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.telemetryManager.Initialize(ctx); err != nil {
			log.Warnf("Failed to initialize OpenTelemetry: %v. Continuing without tracing.", err)
		}
		if s.telemetryManager.IsEnabled() {
			s.tracerProvider = s.telemetryManager.TracerProvider()
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			log.Info("OpenTelemetry trace context propagation configured")
		}
	}

	client := s.newClient(*cfg)
	registry, err := exporter.NewPbsRegistry(
		client,
		cfg.PbsServer.SnapshotHistoryLimit,
		cfg.PbsServer.TaskLimit,
		exporter.WithRegistryTracerProvider(s.tracerProvider),
	)
	if err != nil {
		return fmt.Errorf("failed to create metric registry: %w", err)
	}
	s.registry = registry
	s.health = exporter.NewHealthChecker(registry)

	mux := http.NewServeMux()

	var metricsHandler http.Handler = http.HandlerFunc(s.metricsHandler)
	if s.telemetryManager != nil && s.telemetryManager.IsEnabled() {
		metricsHandler = s.extractTraceContextMiddleware(metricsHandler)
	}
	mux.Handle(cfg.Server.URI, metricsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/", s.landingHandler)

	s.httpSrv = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Infof("Starting %s on %s%s", programName, cfg.GetServerAddress(), cfg.Server.URI)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	return nil
}

func (s *Server) newClient(cfg models.Config) *exporter.PbsClient {
	var opts []exporter.ClientOption
	if s.tracerProvider != nil {
		opts = append(opts, exporter.WithTracerProvider(s.tracerProvider))
	}
	return exporter.NewPbsClient(cfg, opts...)
}

// metricsHandler runs one collection cycle and writes whatever the registry
// renders. A failed collection is logged but still answered with the
// rendered state, including pbs_up 0, so the monitoring system sees the
// degradation instead of a scrape error. Only a render failure yields 500.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Collect(r.Context()); err != nil {
		logging.LogError(fmt.Sprintf("metric collection failed: %v", err))
	}

	body, err := s.registry.Render()
	if err != nil {
		logging.LogError(fmt.Sprintf("metric rendering failed: %v", err))
		http.Error(w, "failed to render metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_, _ = w.Write(body)
}

// healthHandler answers 200 when PBS is reachable and 503 otherwise. The
// underlying probe result is cached for a short TTL.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Check(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}

// landingHandler serves a minimal HTML index pointing at the metrics
// endpoint, the convention among Prometheus exporters.
func (s *Server) landingHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	uri := s.safeCfg.Get().Server.URI
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<html>
<head><title>PBS Exporter</title></head>
<body>
<h1>PBS Exporter</h1>
<p><a href=%q>Metrics</a></p>
</body>
</html>
`, uri)
}

// ReloadConfig reloads the configuration file and, when connection settings
// changed, rebuilds the PBS API client behind the registry. Used by the
// SIGHUP handler and the config file watcher.
func (s *Server) ReloadConfig(configPath string) error {
	clientChanged, err := s.safeCfg.ReloadConfig(configPath)
	if err != nil {
		return err
	}

	if clientChanged {
		cfg := s.safeCfg.Get()
		oldClient := s.registry.Client()
		s.registry.SetClient(s.newClient(*cfg))
		s.health.Flush()
		if err := oldClient.Close(); err != nil {
			log.Warnf("closing previous PBS client: %v", err)
		}
	}

	return nil
}

// ErrorChan returns the channel carrying fatal HTTP server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.serverErrChan
}

// Shutdown stops the server components in order: HTTP server first (no new
// scrapes), then telemetry (flush pending spans while connections are still
// usable), then the PBS client (drain API connections).
func (s *Server) Shutdown() error {
	var errs []error

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("Shutting down HTTP server...")
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	if s.telemetryManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("Shutting down telemetry...")
		if err := s.telemetryManager.Shutdown(ctx); err != nil {
			log.Warnf("Telemetry shutdown warning: %v", err)
		}
	}

	if s.registry != nil {
		log.Info("Closing PBS client connections...")
		if err := s.registry.Client().Close(); err != nil {
			errs = append(errs, fmt.Errorf("client close: %w", err))
		}
	}

	close(s.serverErrChan)

	if len(errs) > 0 {
		log.Errorf("Shutdown completed with %d errors", len(errs))
		return errs[0]
	}

	log.Info("Server stopped gracefully")
	return nil
}

// extractTraceContextMiddleware extracts W3C Trace Context headers from the
// incoming scrape request so the collection cycle's spans join the caller's
// trace when one exists.
func (s *Server) extractTraceContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// setupLogging initializes the logging system with the configured log file
// and enables DEBUG level output when requested.
func setupLogging(cfg *models.Config, debugMode bool) error {
	if err := logging.PrepareLogs(cfg.Server.LogName); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if debugMode {
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug mode enabled")
	}

	return nil
}

// waitForShutdown blocks until SIGINT/SIGTERM arrives or the HTTP server
// reports a fatal error.
func waitForShutdown(serverErr <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)
		return nil
	case err := <-serverErr:
		return err
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Prometheus exporter for Proxmox Backup Server",
		Long:  "PBS Exporter collects metrics from the Proxmox Backup Server API and exposes them in Prometheus format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := models.LoadConfig(configFile)
			if err != nil {
				return err
			}

			if err := setupLogging(cfg, debug); err != nil {
				return err
			}

			log.Infof("Starting %s...", programName)
			log.Infof("PBS server: %s", cfg.GetPbsBaseURL())
			if debug {
				log.Infof("Token secret: %s", cfg.MaskTokenSecret())
			}

			server := NewServer(cfg)
			if err := server.Start(); err != nil {
				return err
			}

			// Live reload: SIGHUP always, file watcher best-effort.
			config.SetupSIGHUPHandler(configFile, server.ReloadConfig)
			var watcher *fsnotify.Watcher
			if watcher, err = config.WatchConfigFile(configFile, server.ReloadConfig); err != nil {
				log.Warnf("Config file watcher setup failed: %v", err)
			} else {
				defer func() { _ = watcher.Close() }()
			}

			if err := waitForShutdown(server.ErrorChan()); err != nil {
				log.Errorf("Server error: %v", err)
			}

			return server.Shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (required)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug mode")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

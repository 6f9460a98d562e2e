package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/wolfeidau/maven-repo"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	checksumOpsTotal      metric.Int64Counter
	checksumBytesTotal    metric.Int64Counter
	checksumStatusTotal   metric.Int64Counter
	metadataUpdatesTotal  metric.Int64Counter
	metadataUpdateSeconds metric.Float64Histogram
	proxyVariantsTotal    metric.Int64Counter
	repairFilesTotal      metric.Int64Counter
	repairRunSeconds      metric.Float64Histogram

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mavenrepo"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := newResource(cfg)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// Without exporters, a no-op periodic reader still lets instruments record.
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	backendRequestDuration, err := meter.Float64Histogram(
		"maven_repo_backend_request_duration_seconds",
		metric.WithDescription("Duration of backend storage operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	backendRequestsTotal, err := meter.Int64Counter(
		"maven_repo_backend_requests_total",
		metric.WithDescription("Total number of backend storage operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	backendBytesTotal, err := meter.Int64Counter(
		"maven_repo_backend_bytes_total",
		metric.WithDescription("Total bytes transferred in backend operations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	checksumOpsTotal, err := meter.Int64Counter(
		"maven_repo_checksum_operations_total",
		metric.WithDescription("Total checksum verify, fix and create operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	checksumBytesTotal, err := meter.Int64Counter(
		"maven_repo_checksum_digested_bytes_total",
		metric.WithDescription("Total bytes read while computing digests"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	checksumStatusTotal, err := meter.Int64Counter(
		"maven_repo_checksum_side_files_total",
		metric.WithDescription("Checksum side-file outcomes of fix operations"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	metadataUpdatesTotal, err := meter.Int64Counter(
		"maven_repo_metadata_updates_total",
		metric.WithDescription("Total metadata document updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	metadataUpdateSeconds, err := meter.Float64Histogram(
		"maven_repo_metadata_update_duration_seconds",
		metric.WithDescription("Duration of metadata document updates"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	proxyVariantsTotal, err := meter.Int64Counter(
		"maven_repo_metadata_proxy_variants_total",
		metric.WithDescription("Proxy metadata variants consulted during updates"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	repairFilesTotal, err := meter.Int64Counter(
		"maven_repo_repair_files_total",
		metric.WithDescription("Files visited by repository repair runs"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	repairRunSeconds, err := meter.Float64Histogram(
		"maven_repo_repair_run_duration_seconds",
		metric.WithDescription("Duration of repository repair runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		backendRequestDuration: backendRequestDuration,
		backendRequestsTotal:   backendRequestsTotal,
		backendBytesTotal:      backendBytesTotal,
		checksumOpsTotal:       checksumOpsTotal,
		checksumBytesTotal:     checksumBytesTotal,
		checksumStatusTotal:    checksumStatusTotal,
		metadataUpdatesTotal:   metadataUpdatesTotal,
		metadataUpdateSeconds:  metadataUpdateSeconds,
		proxyVariantsTotal:     proxyVariantsTotal,
		repairFilesTotal:       repairFilesTotal,
		repairRunSeconds:       repairRunSeconds,
	}, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// newResource describes the service. The semconv schema must match the one
// used by resource.Default or the merge fails.
func newResource(cfg MetricsConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

// RecordBackendOp records backend operation metrics.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// RecordChecksumOp records one checksum operation.
// op is "verify", "fix" or "create".
func RecordChecksumOp(ctx context.Context, op, outcome string, bytes int64) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.checksumOpsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	if bytes > 0 {
		globalMetrics.checksumBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("op", op)))
	}
}

// RecordChecksumStatus records the per-algorithm result of a fix.
func RecordChecksumStatus(ctx context.Context, algorithm, status string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.checksumStatusTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("algorithm", algorithm),
		attribute.String("status", status),
	))
}

// RecordMetadataUpdate records a metadata update.
// kind is "general", "snapshot", "release" or "project".
func RecordMetadataUpdate(ctx context.Context, kind, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	globalMetrics.metadataUpdatesTotal.Add(ctx, 1, attrs)
	globalMetrics.metadataUpdateSeconds.Record(ctx, duration.Seconds(), attrs)
}

// RecordProxyVariant records the result of reading one proxy variant.
// outcome is "found", "missing" or "invalid".
func RecordProxyVariant(ctx context.Context, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.proxyVariantsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRepairFile records one file visited by a repair run.
// task is "checksums" or "metadata".
func RecordRepairFile(ctx context.Context, repository, task, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.repairFilesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("task", task),
		attribute.String("outcome", outcome),
	))
}

// RecordRepairRun records the duration of a completed repair run.
func RecordRepairRun(ctx context.Context, repository, task string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.repairRunSeconds.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("task", task),
	))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// OutcomeFromError maps an error to a low cardinality outcome label.
func OutcomeFromError(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}

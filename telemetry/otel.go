package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Global telemetry handles. Direct OTEL, no wrapper layer.
var (
	// Tracer for distributed tracing
	Tracer = otel.Tracer("github.com/skiffworks/skiff")

	// Meter for metrics
	Meter = otel.Meter("github.com/skiffworks/skiff")

	// PrometheusRegistry for Prometheus scraping (dual export pattern).
	// Non-nil from package load so /metrics can be served before InitOTEL;
	// InitOTEL swaps in the registry its exporter feeds.
	PrometheusRegistry = promclient.NewRegistry()

	// Metrics, following OTEL naming conventions
	ReconcileAttempts   metric.Int64Counter
	InstancesCreated    metric.Int64Counter
	InstancesTerminated metric.Int64Counter
	ProviderErrors      metric.Int64Counter
	PolicyDenials       metric.Int64Counter
	BackoffSeconds      metric.Float64Histogram
	ReconcileDuration   metric.Float64Histogram
	StorageRevision     metric.Int64Gauge
	ManagedInstances    metric.Int64Gauge
)

// Instruments are created from the global meter at package load so
// recording is always safe to call. InitOTEL rebinds them to the
// configured provider.
func init() {
	_ = initMetrics()
}

// Config for OTEL initialization
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTELEndpoint   string  // e.g. "localhost:4317"; empty disables OTLP export
	Insecure       bool    // true for local dev
	SampleRate     float64 // trace sampling ratio, 0 or out of range means sample everything
}

// InitOTEL initializes OpenTelemetry. Metrics always get a Prometheus
// reader for pull-based scraping; traces and push export are added only
// when an OTLP endpoint is configured.
func InitOTEL(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	cfg = applyConfigDefaults(cfg)

	res, err := createOTELResource(cfg)
	if err != nil {
		return nil, err
	}

	return setupProviders(ctx, cfg, res)
}

// applyConfigDefaults applies default values to config
func applyConfigDefaults(cfg Config) Config {
	if cfg.OTELEndpoint == "" {
		cfg.OTELEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "skiff"
	}

	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}

	return cfg
}

// createOTELResource creates the OTEL resource with service information
func createOTELResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// setupProviders sets up trace and metric providers
func setupProviders(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	traceShutdown, err := setupTraceProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to setup traces: %w", err)
	}

	metricShutdown, err := setupMetricProvider(ctx, cfg, res)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	if err := initMetrics(); err != nil {
		_ = traceShutdown(ctx)
		_ = metricShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return createCombinedShutdown(traceShutdown, metricShutdown), nil
}

// createCombinedShutdown creates a combined shutdown function
func createCombinedShutdown(traceShutdown, metricShutdown func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var err error
		if e := traceShutdown(ctx); e != nil {
			err = fmt.Errorf("trace shutdown failed: %w", e)
		}
		if e := metricShutdown(ctx); e != nil && err == nil {
			err = fmt.Errorf("metric shutdown failed: %w", e)
		}
		return err
	}
}

// setupTraceProvider configures a trace provider with an OTLP exporter
// when an endpoint is set
func setupTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	if cfg.OTELEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTELEndpoint),
	}

	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Tracer = provider.Tracer("github.com/skiffworks/skiff")

	return provider.Shutdown, nil
}

// samplerFor maps a sampling ratio to a sampler. Child spans follow
// their parent's decision.
func samplerFor(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// setupMetricProvider configures a metric provider with dual export:
// Prometheus for pull-based scraping plus OTLP push when configured
func setupMetricProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	var readers []sdkmetric.Reader

	registry := promclient.NewRegistry()
	PrometheusRegistry = registry

	prometheusExporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	readers = append(readers, prometheusExporter)

	if cfg.OTELEndpoint != "" {
		otlpReader, err := createOTLPReader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric reader: %w", err)
		}
		readers = append(readers, otlpReader)
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	provider := sdkmetric.NewMeterProvider(providerOpts...)

	otel.SetMeterProvider(provider)

	Meter = provider.Meter("github.com/skiffworks/skiff")

	return provider.Shutdown, nil
}

// createOTLPReader creates an OTLP periodic reader for push-based export
func createOTLPReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.OTELEndpoint),
	}

	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(10*time.Second),
	), nil
}

// initMetrics initializes all metric instruments
func initMetrics() error {
	if err := initCounters(); err != nil {
		return err
	}

	if err := initHistograms(); err != nil {
		return err
	}

	return initGauges()
}

// initCounters initializes counter metrics
func initCounters() error {
	var err error

	ReconcileAttempts, err = Meter.Int64Counter("skiff.reconcile.attempts.total",
		metric.WithDescription("Total number of reconcile loop iterations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconcile_attempts counter: %w", err)
	}

	InstancesCreated, err = Meter.Int64Counter("skiff.instances.created.total",
		metric.WithDescription("Total number of instances launched"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create instances_created counter: %w", err)
	}

	InstancesTerminated, err = Meter.Int64Counter("skiff.instances.terminated.total",
		metric.WithDescription("Total number of instances terminated"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create instances_terminated counter: %w", err)
	}

	ProviderErrors, err = Meter.Int64Counter("skiff.provider.errors.total",
		metric.WithDescription("Total number of provider errors by kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create provider_errors counter: %w", err)
	}

	PolicyDenials, err = Meter.Int64Counter("skiff.policy.denials.total",
		metric.WithDescription("Total number of creations denied by policy"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create policy_denials counter: %w", err)
	}

	return nil
}

// initHistograms initializes histogram metrics
func initHistograms() error {
	var err error

	ReconcileDuration, err = Meter.Float64Histogram("skiff.reconcile.duration.seconds",
		metric.WithDescription("Duration of reconcile operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconcile_duration histogram: %w", err)
	}

	BackoffSeconds, err = Meter.Float64Histogram("skiff.reconcile.backoff.seconds",
		metric.WithDescription("Backoff sleep durations after failed creates"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backoff_seconds histogram: %w", err)
	}

	return nil
}

// initGauges initializes gauge metrics
func initGauges() error {
	var err error

	StorageRevision, err = Meter.Int64Gauge("skiff.storage.revision.current",
		metric.WithDescription("Current observation store revision number"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage_revision gauge: %w", err)
	}

	ManagedInstances, err = Meter.Int64Gauge("skiff.instances.managed.current",
		metric.WithDescription("Current number of managed instances observed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create managed_instances gauge: %w", err)
	}

	return nil
}

package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	return NewLoggerTo(os.Stdout, service)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	logger := l.WithContext(ctx)

	event := logger.Info().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
	} else {
		logger.Debug().
			Str("span_name", spanName).
			Msg("span completed")
	}
}

// Helper to convert OTEL attributes to zerolog fields
func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	default:
		return event.Str(key, attr.Value.AsString())
	}
}

// Convenience methods for reconcile operations

func (l *Logger) LogObservation(ctx context.Context, name, state string) {
	l.WithContext(ctx).Debug().
		Str("vm", name).
		Str("state", state).
		Str("operation", "observe").
		Msg("observed vm state")
}

func (l *Logger) LogCreateAttempt(ctx context.Context, name string, failures int) {
	l.WithContext(ctx).Info().
		Str("vm", name).
		Int("failures", failures).
		Str("operation", "create").
		Msg("launching vm")
}

func (l *Logger) LogCreateFailure(ctx context.Context, name, imageID, instanceType, keyPair string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("vm", name).
		Str("image_id", imageID).
		Str("instance_type", instanceType).
		Str("key_pair", keyPair).
		Str("operation", "create").
		Msg("vm launch failed")
}

func (l *Logger) LogUnknownState(ctx context.Context, name, rawState string) {
	l.WithContext(ctx).Warn().
		Str("vm", name).
		Str("raw_state", rawState).
		Str("operation", "observe").
		Msg("unrecognized instance state, waiting for it to settle")
}

func (l *Logger) LogBackoff(ctx context.Context, name string, failures int, delaySeconds float64) {
	l.WithContext(ctx).Warn().
		Str("vm", name).
		Int("failures", failures).
		Float64("delay_seconds", delaySeconds).
		Str("operation", "backoff").
		Msg("create failed, backing off")
}

func (l *Logger) LogProviderError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("provider operation failed")
}

func (l *Logger) LogPolicyDenial(ctx context.Context, name string, denials []string) {
	l.WithContext(ctx).Error().
		Str("vm", name).
		Strs("denials", denials).
		Str("operation", "policy").
		Msg("creation denied by policy")
}

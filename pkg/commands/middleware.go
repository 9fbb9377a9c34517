package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// LoggingMiddleware logs command execution with timing using slog.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, cmd *Envelope) (*Result, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "command failed",
					slog.String("command_type", cmd.Type),
					slog.String("command_id", cmd.CommandID),
					slog.String("correlation_id", cmd.CorrelationID),
					slog.String("kind", domain.KindOf(err)),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "command executed",
				slog.String("command_type", cmd.Type),
				slog.String("command_id", cmd.CommandID),
				slog.String("correlation_id", cmd.CorrelationID),
				slog.String("aggregate_id", result.AggregateID),
				slog.Int64("version", result.Version),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)
			return result, nil
		})
	}
}

// RecoveryMiddleware converts handler panics into internal errors.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, cmd *Envelope) (result *Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "command handler panicked",
						slog.String("command_type", cmd.Type),
						slog.String("command_id", cmd.CommandID),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)
					result = nil
					err = fmt.Errorf("command handler panicked: %v", r)
				}
			}()
			return next.Handle(ctx, cmd)
		})
	}
}

// MetricsMiddleware records command counts and latency.
func MetricsMiddleware(meter metric.Meter) Middleware {
	counter, _ := meter.Int64Counter("commands.processed",
		metric.WithDescription("Commands processed, by type and outcome"))
	latency, _ := meter.Float64Histogram("commands.duration",
		metric.WithDescription("Command handling latency"),
		metric.WithUnit("ms"))

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, cmd *Envelope) (*Result, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)

			outcome := "ok"
			if err != nil {
				outcome = domain.KindOf(err)
			}
			attrs := metric.WithAttributes(
				attribute.String("command_type", cmd.Type),
				attribute.String("outcome", outcome),
			)
			counter.Add(ctx, 1, attrs)
			latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
			return result, err
		})
	}
}

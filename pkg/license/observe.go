package license

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/astralux/licensing/pkg/license"

// Operation names used for spans, metrics and log lines.
const (
	OpGenerate     = "generate"
	OpClaim        = "claim"
	OpValidate     = "validate"
	OpRevoke       = "revoke"
	OpResetHwid    = "reset_hwid"
	OpInspect      = "inspect"
	OpCheckShare   = "check_share"
	OpLedgerAppend = "ledger_append"
)

// Recorder receives one observation per finished operation. kind is empty
// on success.
type Recorder interface {
	Observe(op string, kind Kind, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, Kind, time.Duration) {}

type instruments struct {
	recorder Recorder
	logger   zerolog.Logger
}

func defaultInstruments() instruments {
	return instruments{recorder: nopRecorder{}, logger: zerolog.Nop()}
}

// start opens a span for op and returns a finisher that closes it, records
// the outcome and logs it.
func (in instruments) start(ctx context.Context, op, key string) (context.Context, func(error)) {
	began := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "license."+op, trace.WithAttributes(
		attribute.String("license.op", op),
	))
	if key != "" {
		span.SetAttributes(attribute.String("license.key", key))
	}
	return ctx, func(err error) {
		kind := KindOf(err)
		if err != nil && kind == "" {
			kind = KindStoreUnavailable
		}
		in.recorder.Observe(op, kind, time.Since(began))

		var event *zerolog.Event
		switch kind {
		case "":
			event = in.logger.Info()
		case KindStoreUnavailable:
			event = in.logger.Error().Err(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
		default:
			event = in.logger.Warn()
		}
		if kind != "" {
			span.SetAttributes(attribute.String("license.outcome", string(kind)))
			event = event.Str("outcome", string(kind))
		} else {
			event = event.Str("outcome", "ok")
		}
		event.Str("op", op).Str("license_key", key).Msg("license operation finished")
		span.End()
	}
}

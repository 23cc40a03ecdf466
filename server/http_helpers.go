package main

import (
	"errors"
	"net/http"

	"github.com/astralux/licensing/pkg/license"
	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestIDContextKey     = "request_id"
	requestLoggerContextKey = "request_logger"
	resultKeyContextKey     = "result_key"
	requestIDHeader         = "X-Request-ID"
)

const tracerName = "github.com/astralux/licensing/server"

func withRequestContext(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" || len(reqID) > 64 {
			reqID = xid.New().String()
		}
		c.Set(requestIDContextKey, reqID)
		c.Writer.Header().Set(requestIDHeader, reqID)

		logger := base.With().Str("request_id", reqID).Str("method", c.Request.Method).Str("route", c.FullPath()).Logger()
		c.Set(requestLoggerContextKey, logger)

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := otel.Tracer(tracerName).Start(ctx, c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", c.FullPath()),
				attribute.String("request.id", reqID),
			))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
	}
}

// withResultKey names the boolean field failure bodies carry on a route:
// "valid" for the client endpoints, "success" elsewhere.
func withResultKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(resultKeyContextKey, key)
		c.Next()
	}
}

func requestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if value, ok := c.Get(requestLoggerContextKey); ok {
		if logger, ok := value.(zerolog.Logger); ok {
			return logger
		}
	}
	return fallback
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

func resultKey(c *gin.Context) string {
	if key := c.GetString(resultKeyContextKey); key != "" {
		return key
	}
	return "success"
}

// statusFor maps a lifecycle error kind to its HTTP status.
func statusFor(kind license.Kind) int {
	switch kind {
	case license.KindUnauthorized:
		return http.StatusUnauthorized
	case license.KindNotFound:
		return http.StatusNotFound
	case license.KindRevoked, license.KindNotRedeemed, license.KindAlreadyClaimed,
		license.KindHwidMismatch, license.KindNoResetsRemaining:
		return http.StatusForbidden
	case license.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// respondLicenseError writes the failure body for err. Store failures are
// reported without their cause; the engine has already logged it.
func respondLicenseError(c *gin.Context, err error, fallback zerolog.Logger) {
	kind := license.KindOf(err)
	message := "internal error"
	var le *license.Error
	if errors.As(err, &le) {
		message = le.Message
	}
	if kind == "" || kind == license.KindStoreUnavailable {
		kind = license.KindStoreUnavailable
		message = "license store unavailable, retry later"
		c.Header("Retry-After", "1")
	}
	respondError(c, statusFor(kind), kind, message, fallback)
}

func respondError(c *gin.Context, status int, code license.Kind, message string, fallback zerolog.Logger) {
	logger := requestLogger(c, fallback)
	entry := logger.Warn()
	if status >= http.StatusInternalServerError {
		entry = logger.Error()
	}
	entry.Int("status", status).Str("code", string(code)).Msg(message)
	if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
		span.AddEvent("http.error", trace.WithAttributes(
			attribute.Int("http.status_code", status),
			attribute.String("error.code", string(code)),
		))
		if status >= http.StatusInternalServerError {
			span.RecordError(errors.New(message))
		}
	}

	c.AbortWithStatusJSON(status, gin.H{
		resultKey(c): false,
		"error":      message,
		"code":       code,
		"request_id": requestID(c),
	})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Context keys for trace propagation.
type contextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey contextKey = "traceID"

	// RequestIDKey is the context key for request ID.
	RequestIDKey contextKey = "requestID"

	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader is the HTTP header for trace ID.
	TraceIDHeader = "X-Trace-ID"

	// IdempotencyKeyHeader carries the client-chosen replay key of a POST.
	IdempotencyKeyHeader = "Idempotency-Key"

	// IdempotencyHitHeader marks a replayed response.
	IdempotencyHitHeader = "X-Idempotency-Hit"
)

var tracer = otel.Tracer("kestrel-api")

// TracingMiddleware creates OpenTelemetry spans and propagates trace context.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		if !span.SpanContext().TraceID().IsValid() {
			traceID = requestID
		}

		ctx = context.WithValue(ctx, RequestIDKey, requestID)
		ctx = context.WithValue(ctx, TraceIDKey, traceID)

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		rw := wrapWriter(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}

// LoggingMiddleware logs HTTP requests with structured logging.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapWriter(w)

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", GetRequestID(r.Context()),
			"trace_id", GetTraceID(r.Context()),
		)
	})
}

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapWriter(w)

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.RecordHTTP(r.Context(), r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing for browser clients.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key, X-Request-ID, X-Trace-ID, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID, X-Idempotency-Hit, Retry-After")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware recovers from panics and returns 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered",
					"error", rec,
					"path", r.URL.Path,
				)
				writeError(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware allows limit requests per client IP in each fixed
// window. Counters live in the cache so replicas sharing Redis share the
// budget. Cache failures let the request through.
func RateLimitMiddleware(cache domain.Cache, cfg domain.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cache == nil || cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 {
			return next
		}
		retryAfter := strconv.Itoa(int(math.Ceil(cfg.Window.Seconds())))
		limit := strconv.FormatInt(cfg.RequestsPerWindow, 10)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			count, err := cache.IncrementCounter(r.Context(), "ratelimit:"+client, cfg.Window)
			if err != nil {
				slog.Warn("rate limit counter unavailable",
					"client_ip", client,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(cfg.RequestsPerWindow-count, 0), 10))

			if count > cfg.RequestsPerWindow {
				w.Header().Set("Retry-After", retryAfter)
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Error:   "rate limit exceeded",
					Code:    "RATE_LIMITED",
					TraceID: GetTraceID(r.Context()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// idempotencyRecord is a stored response replayed for a repeated key.
type idempotencyRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// idempotencyLockTTL bounds how long an in-flight key stays reserved if
// the node serving it dies before releasing it.
const idempotencyLockTTL = time.Minute

// IdempotencyMiddleware replays the stored response of a POST that carries
// an Idempotency-Key seen before. Only non-5xx responses are stored, so a
// failed attempt can be retried with the same key. The key is reserved
// while the first request runs; a concurrent duplicate gets 409.
func IdempotencyMiddleware(cache domain.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cache == nil || ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			cacheKey := "idem:" + r.URL.Path + ":" + key
			lockKey := cacheKey + ":lock"

			if replayIdempotent(ctx, w, cache, cacheKey, key) {
				return
			}

			reserved, err := cache.SetIfAbsent(ctx, lockKey, []byte("processing"), idempotencyLockTTL)
			switch {
			case err != nil:
				slog.Warn("idempotency reservation failed", "key", key, "error", err)
			case !reserved:
				// The first request may have finished since the lookup.
				if replayIdempotent(ctx, w, cache, cacheKey, key) {
					return
				}
				writeError(w, r, fmt.Errorf("%w: a request with Idempotency-Key %q is still in progress", domain.ErrConflict, key))
				return
			default:
				defer func() {
					if err := cache.Delete(context.WithoutCancel(ctx), lockKey); err != nil {
						slog.Warn("failed to release idempotency key", "key", key, "error", err)
					}
				}()
			}

			cw := &captureWriter{responseWriter: wrapWriter(w)}
			next.ServeHTTP(cw, r)

			if cw.statusCode >= http.StatusInternalServerError {
				return
			}
			raw, err := json.Marshal(idempotencyRecord{
				Status:      cw.statusCode,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.body.Bytes(),
			})
			if err == nil {
				err = cache.Set(context.WithoutCancel(ctx), cacheKey, raw, ttl)
			}
			if err != nil {
				slog.Error("failed to save idempotency record", "key", key, "error", err)
			}
		})
	}
}

// replayIdempotent writes the stored response for cacheKey, if any.
func replayIdempotent(ctx context.Context, w http.ResponseWriter, cache domain.Cache, cacheKey, key string) bool {
	raw, err := cache.Get(ctx, cacheKey)
	if err != nil {
		slog.Warn("idempotency lookup failed", "key", key, "error", err)
		return false
	}
	if raw == nil {
		return false
	}
	var rec idempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false
	}

	slog.Info("idempotency hit, replaying response",
		"key", key,
		"status", rec.Status,
	)
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(IdempotencyHitHeader, "true")
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
	return true
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// captureWriter tees the response body for the idempotency store.
type captureWriter struct {
	*responseWriter
	body bytes.Buffer
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.body.Write(b)
	return cw.responseWriter.Write(b)
}

// clientIP returns the caller address without port. chi's RealIP has
// already applied X-Forwarded-For / X-Real-IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GetTraceID extracts trace ID from context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

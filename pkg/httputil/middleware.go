package httputil

import (
	"mime"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/orgscope/pkg/contextkeys"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// bodyMethods are the methods whose bodies ContentTypeMiddleware inspects
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// RequestIDMiddleware propagates the caller's request ID or assigns a new
// one, and records it in the context together with the arrival time
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := contextkeys.WithRequestStartTime(contextkeys.WithRequestID(r.Context(), id), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware writes one entry per request, at Error for 5xx and Info
// otherwise. Durations are measured from the arrival time recorded by
// RequestIDMiddleware when that runs first.
func LoggingMiddleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start, ok := contextkeys.GetRequestStartTime(r.Context())
			if !ok {
				start = time.Now()
			}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sw.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  contextkeys.GetRequestID(r.Context()),
			}
			if caller := r.Header.Get("X-User-ID"); caller != "" {
				fields["user_id"] = caller
			}

			if sw.status >= http.StatusInternalServerError {
				log.WithFields(fields).Error("request failed")
			} else {
				log.WithFields(fields).Info("request handled")
			}
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 without leaking the
// panic value to the client
func RecoveryMiddleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				log.WithFields(logrus.Fields{
					"panic":      rec,
					"stack":      string(debug.Stack()),
					"path":       r.URL.Path,
					"request_id": contextkeys.GetRequestID(r.Context()),
				}).Error("panic in handler")
				WriteInternalError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware rejects bodies declared as anything but JSON. A
// missing header is accepted; parameters such as charset are ignored.
func ContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" && bodyMethods[r.Method] {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				WriteBadRequest(w, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBytesMiddleware caps request bodies at maxBytes
func MaxBytesMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

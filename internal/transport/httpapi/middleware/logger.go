package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/andrewinci/actual-sync/pkg/logger"
)

// maxErrorBody bounds how much of an error response is kept for the log line
const maxErrorBody = 4 << 10

// boundedBuffer keeps the first maxErrorBody bytes written to it
type boundedBuffer struct {
	bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := maxErrorBody - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

// errorMessage pulls the "error" field out of a JSON error body
func errorMessage(body []byte) string {
	var obj ErrorBody
	if json.Unmarshal(body, &obj) == nil {
		return obj.Error
	}
	return ""
}

// ErrorBody is the JSON shape of every error answer
type ErrorBody struct {
	Error string `json:"error"`
}

// Logger returns a request logging middleware. Requests are logged at info,
// client errors at warn and server errors at error with the error message.
func Logger(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			body := &boundedBuffer{}
			ww.Tee(body)

			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, reqID))
				ww.Header().Set("X-Request-Id", reqID)
			}

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				}
				if status >= 400 {
					if msg := errorMessage(body.Bytes()); msg != "" {
						attrs = append(attrs, "error", msg)
					}
				}

				reqLog := log.WithContext(r.Context())
				switch {
				case status >= 500:
					reqLog.Error("HTTP request", attrs...)
				case status >= 400:
					reqLog.Warn("HTTP request", attrs...)
				default:
					reqLog.Info("HTTP request", attrs...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

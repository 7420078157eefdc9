package middleware

import (
	"net/http"
	"time"

	"optionscore/pkg/utils"
)

// responseWriter captures the status code and bytes written for the log line.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging records every HTTP request through the structured logger: method,
// path, status, latency, client address, and response size.
func Logging(next http.Handler) http.Handler {
	log := utils.L().WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		log.Sugar().Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
			"remote", r.RemoteAddr,
			"bytes", rw.written,
		)
	})
}

package server

import (
	"net/http"
	"time"

	"github.com/telhawk-systems/telhawk-relay/common/httputil"
	"github.com/telhawk-systems/telhawk-relay/common/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// AccessLog logs one debug line per request with status and duration.
// Health and metrics probes are not logged.
func AccessLog(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.DebugContext(r.Context(), "request completed",
				logging.Method(r.Method),
				logging.Path(r.URL.Path),
				logging.Status(status),
				logging.Bytes(rec.bytes),
				logging.IP(httputil.GetClientIP(r)),
				logging.Duration(time.Since(start)),
			)
		})
	}
}

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radiancehq/radiance/pkg/tenant"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogging logs one structured line per request, including the
// tenant organization when present.
func RequestLogging(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			fields := logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}
			if tc, ok := tenant.FromContext(r.Context()); ok {
				fields["organization_id"] = tc.OrganizationID
			}
			log.WithFields(fields).Info("request handled")
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// httpMetrics — счётчики HTTP-слоя.
type httpMetrics struct {
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "auth",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by method, path and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(m.duration)
	return m
}

// Metrics пишет гистограмму длительности запросов в переданный Registerer.
// Метки: method, path (шаблон из роутера недоступен — берём URL.Path),
// status.
func Metrics(reg prometheus.Registerer) Middleware {
	m := newHTTPMetrics(reg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			m.duration.
				WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
		})
	}
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/transport/http/middleware"
)

// RouterOptions — зависимости и параметры HTTP-роутера.
type RouterOptions struct {
	Log *slog.Logger
	// Registry для HTTP-метрик и эндпоинта /metrics; nil отключает сбор метрик.
	Registry *prometheus.Registry
	// Таймаут обработки запроса; 0 — без таймаута.
	Timeout time.Duration
	// Ready — признак готовности сервиса (для /healthz); nil трактуется как "готов".
	Ready func() bool
}

// NewRouter собирает chi-роутер: auth-эндпоинты, liveness/readiness,
// и цепочку мидлваров (снаружи внутрь): request_id -> logging -> recover ->
// metrics -> timeout.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	s.Routes(r)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready != nil && !opts.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	mws := []middleware.Middleware{
		middleware.RequestID(),
		middleware.Logging(opts.Log),
		middleware.Recover(),
	}
	if opts.Registry != nil {
		mws = append(mws, middleware.Metrics(opts.Registry))
	}
	mws = append(mws, middleware.Timeout(opts.Timeout))

	return middleware.Chain(r, mws...)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/handler/health"
	"github.com/zhouzirui/line-relay/backend/internal/handler/webhook"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
)

// NewRouter wires HTTP routes to the relay. metricsHandler may be nil, in
// which case /metrics is not served.
func NewRouter(webhookHandler *webhook.Handler, healthHandler *health.Handler, metricsHandler http.Handler, metrics *observe.Metrics, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe.Middleware(metrics, logger))
	r.Use(middleware.Recoverer)

	// LINE 平台回调
	webhookHandler.RegisterRoutes(r)

	// 探针
	healthHandler.RegisterRoutes(r)

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}

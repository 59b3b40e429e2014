// Package health serves the liveness and readiness probes.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered Checker and answers 503 when a required one fails;
// optional checkers are reported but never fail the probe.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil when healthy.
type Checker struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler 健康检查处理器，checker 列表在构造后不再变化
type Handler struct {
	checkers []Checker
}

// New 创建健康检查处理器，checker 按顺序执行
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// RegisterRoutes 注册 /healthz 与 /readyz
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

// Healthz 存活探针
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz 就绪探针
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		switch {
		case err == nil:
			checks[c.Name] = "ok"
		case c.Optional:
			checks[c.Name] = "degraded: " + err.Error()
		default:
			checks[c.Name] = "fail: " + err.Error()
			ready = false
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	utils.RespondJSON(w, status, res)
}

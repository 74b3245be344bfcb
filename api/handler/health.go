package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/relational/api/transport"
	"github.com/fastygo/relational/internal/infrastructure/monitor"
	"github.com/fastygo/relational/pkg/httpcontext"
)

// StatusSource reports backend reachability.
type StatusSource interface {
	GetStatus() monitor.Status
	IsOnline() bool
}

type HealthHandler struct {
	baseHandler
	monitor StatusSource
}

func NewHealthHandler(mon StatusSource, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"services": map[string]interface{}{
			"mongo":      status.Mongo,
			"postgresql": status.PostgreSQL,
			"redis":      status.Redis,
			"repair_queue": map[string]interface{}{
				"online": status.RepairQueue,
				"size":   status.RepairQueueSize,
			},
		},
	}

	if h.monitor.IsOnline() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewDegraded("dependencies unhealthy", payload))
}

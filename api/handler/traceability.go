package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/relational/pkg/httpcontext"
	traceabilityUC "github.com/fastygo/relational/usecase/traceability"
)

type TraceabilityHandler struct {
	baseHandler
	uc *traceabilityUC.UseCase
}

func NewTraceabilityHandler(uc *traceabilityUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TraceabilityHandler {
	return &TraceabilityHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Build traceability chain
// @Tags traceability
// @Router /api/v1/traceability/{type}/{id} [get]
func (h *TraceabilityHandler) Chain(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	key, err := entityKey(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	chain, err := h.uc.BuildTraceabilityChain(stdCtx, key.ID, key.Type)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, chain)
}

// @Summary Score traceability coverage
// @Tags traceability
// @Router /api/v1/traceability/{type}/{id}/validate [get]
func (h *TraceabilityHandler) Validate(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	key, err := entityKey(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	validation, err := h.uc.ValidateTraceability(stdCtx, key.ID, key.Type)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, validation)
}

package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/relational/pkg/httpcontext"
	complianceUC "github.com/fastygo/relational/usecase/compliance"
)

const assessSegment = "assess"

type ComplianceHandler struct {
	baseHandler
	uc *complianceUC.UseCase
}

func NewComplianceHandler(uc *complianceUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// Post serves both POST /api/v1/compliance/{type}/{id} and
// POST /api/v1/compliance/{id}/assess, which share one route shape.
func (h *ComplianceHandler) Post(ctx *fasthttp.RequestCtx) {
	if pathValue(ctx, "id") == assessSegment {
		ctx.SetUserValue("id", pathValue(ctx, "type"))
		h.Assess(ctx)
		return
	}
	h.Initialize(ctx)
}

// @Summary Initialize compliance framework
// @Tags compliance
// @Router /api/v1/compliance/{type}/{id} [post]
func (h *ComplianceHandler) Initialize(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	key, err := entityKey(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	framework, err := h.uc.InitializeComplianceFramework(stdCtx, key.ID, key.Type)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, framework)
}

// @Summary Assess compliance
// @Tags compliance
// @Router /api/v1/compliance/{id}/assess [post]
func (h *ComplianceHandler) Assess(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing entity id")
		return
	}
	assessment, err := h.uc.AssessCompliance(stdCtx, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, assessment)
}

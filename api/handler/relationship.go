package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/relational/api/transport"
	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/httpcontext"
	relationshipUC "github.com/fastygo/relational/usecase/relationship"
)

type RelationshipHandler struct {
	baseHandler
	uc *relationshipUC.UseCase
}

func NewRelationshipHandler(uc *relationshipUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Create relationship
// @Tags relationships
// @Router /api/v1/relationships [post]
func (h *RelationshipHandler) Create(ctx *fasthttp.RequestCtx) {
	var req transport.CreateRelationshipRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	source, err := parseKey(req.SourceID, req.SourceType)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	target, err := parseKey(req.TargetID, req.TargetType)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	meta := &relationshipUC.Metadata{
		DisplayName: req.DisplayName,
		TriggeredBy: httpcontext.Actor(stdCtx, req.TriggeredBy),
	}
	relType := domain.RelationshipType(req.RelationshipType)
	if err := h.uc.CreateRelationship(stdCtx, source, target, relType, meta); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, map[string]interface{}{
		"source":           source,
		"target":           target,
		"relationshipType": relType,
	})
}

// @Summary Update relationship metadata
// @Tags relationships
// @Router /api/v1/relationships [put]
func (h *RelationshipHandler) Update(ctx *fasthttp.RequestCtx) {
	var req transport.UpdateRelationshipRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	source, err := parseKey(req.SourceID, req.SourceType)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	var rules *domain.CascadeRules
	if req.CascadeRules != nil {
		rules = &domain.CascadeRules{
			OnParentDelete: domain.CascadePolicy(req.CascadeRules.OnParentDelete),
			OnChildDelete:  domain.CascadePolicy(req.CascadeRules.OnChildDelete),
		}
	}
	updates := relationshipUC.ReferenceUpdate{
		DisplayName: req.DisplayName,
		IsActive:    req.IsActive,
		TriggeredBy: httpcontext.Actor(stdCtx, req.TriggeredBy),
	}
	if err := h.uc.UpdateRelationship(stdCtx, source, domain.RelationshipType(req.RelationshipType), req.TargetID, updates, rules); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Delete relationship
// @Tags relationships
// @Router /api/v1/relationships [delete]
func (h *RelationshipHandler) Delete(ctx *fasthttp.RequestCtx) {
	var req transport.DeleteRelationshipRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	source, err := parseKey(req.SourceID, req.SourceType)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	strategy, err := domain.ParseCleanupStrategy(req.CleanupStrategy)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	triggeredBy := httpcontext.Actor(stdCtx, req.TriggeredBy)
	if err := h.uc.DeleteRelationship(stdCtx, source, domain.RelationshipType(req.RelationshipType), req.TargetID, strategy, triggeredBy); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Validate relationship integrity
// @Tags relationships
// @Router /api/v1/integrity/{type}/{id} [get]
func (h *RelationshipHandler) Integrity(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	key, err := entityKey(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	report, err := h.uc.ValidateIntegrity(stdCtx, key)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, report)
}

func parseKey(id, rawType string) (domain.EntityKey, error) {
	entityType, err := domain.ParseEntityType(rawType)
	if err != nil {
		return domain.EntityKey{}, err
	}
	return domain.EntityKey{ID: id, Type: entityType}, nil
}

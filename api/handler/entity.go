package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/relational/api/transport"
	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/httpcontext"
	"github.com/fastygo/relational/repository"
	entityUC "github.com/fastygo/relational/usecase/entity"
)

type EntityHandler struct {
	baseHandler
	uc *entityUC.UseCase
}

func NewEntityHandler(uc *entityUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Create entity
// @Tags entities
// @Router /api/v1/entities [post]
func (h *EntityHandler) Create(ctx *fasthttp.RequestCtx) {
	var req transport.CreateEntityRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	entityType, err := domain.ParseEntityType(req.EntityType)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	created, err := h.uc.CreateEntity(stdCtx, &domain.Entity{
		ID:         req.ID,
		EntityType: entityType,
		Name:       req.Name,
		Status:     req.Status,
		Fields:     req.Fields,
		Metadata:   domain.EntityMetadata{UpdatedBy: httpcontext.Actor(stdCtx, "")},
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Get entity
// @Tags entities
// @Router /api/v1/entities/{type}/{id} [get]
func (h *EntityHandler) Get(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	key, err := entityKey(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	entity, err := h.uc.GetEntity(stdCtx, key)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, entity)
}

// @Summary Query entities by field
// @Tags entities
// @Router /api/v1/entities/{type} [get]
func (h *EntityHandler) Query(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	entityType, err := domain.ParseEntityType(pathValue(ctx, "type"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	args := ctx.QueryArgs()
	field := string(args.Peek("field"))
	op := repository.QueryOp(string(args.Peek("op")))
	if field == "" {
		field, op = "id", repository.OpExists
	}
	if op == "" {
		op = repository.OpEqual
	}

	value, err := parseQueryValue(field, string(args.Peek("value")), string(args.Peek("type")))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	entities, err := h.uc.QueryEntities(stdCtx, entityType, field, op, value)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewList(entities, transport.Meta{
		Count: len(entities),
		Field: field,
		Op:    string(op),
	}))
}

// @Summary Update entity fields
// @Tags entities
// @Router /api/v1/entities/{type}/{id} [put]
func (h *EntityHandler) Update(ctx *fasthttp.RequestCtx) {
	var req transport.UpdateEntityRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	key, err := entityKey(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	updated, err := h.uc.UpdateEntity(stdCtx, key, req.Version, entityUC.Patch{
		Name:        req.Name,
		Status:      req.Status,
		SetFields:   req.SetFields,
		UnsetFields: req.UnsetFields,
		UpdatedBy:   httpcontext.Actor(stdCtx, ""),
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// Query value types accepted in the type query arg.
const (
	valueString = "string"
	valueNumber = "number"
	valueBool   = "bool"
	valueTime   = "time"
)

// parseQueryValue types a raw query value. An explicit kind wins; otherwise
// fields.* paths stay strings, since custom fields are stored as strings, and
// anything else is typed the way a JSON client would have sent it.
func parseQueryValue(field, raw, kind string) (any, error) {
	if raw == "" && kind == "" {
		return nil, nil
	}
	switch kind {
	case "":
		if strings.HasPrefix(field, "fields.") {
			return raw, nil
		}
		return inferQueryValue(raw), nil
	case valueString:
		return raw, nil
	case valueNumber:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, queryValueError(raw, kind)
		}
		return f, nil
	case valueBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, queryValueError(raw, kind)
		}
		return b, nil
	case valueTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, queryValueError(raw, kind)
		}
		return t, nil
	default:
		return nil, domain.WrapError(domain.ErrCodeInvalid, "unknown query value type "+kind, domain.ErrInvalidPayload)
	}
}

func inferQueryValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return raw
}

func queryValueError(raw, kind string) error {
	return domain.WrapError(domain.ErrCodeInvalid, fmt.Sprintf("query value %q is not a %s", raw, kind), domain.ErrInvalidPayload)
}

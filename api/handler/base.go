package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/relational/api/transport"
	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/httpcontext"
	appLogger "github.com/fastygo/relational/pkg/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		appLogger.WithRequestID(stdCtx, h.logger).Error("request failed",
			zap.ByteString("path", ctx.Path()),
			zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.NewError(code, err.Error()))
}

func (h baseHandler) respondInvalid(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), message))
}

// decode unmarshals the body into dst and runs struct validation.
func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		h.respondInvalid(ctx, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field '%s' failed rule '%s=%s'", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field '%s' failed rule '%s'", fe.Field(), fe.Tag())
}

func pathValue(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

// entityKey reads the {type} and {id} path parameters.
func entityKey(ctx *fasthttp.RequestCtx) (domain.EntityKey, error) {
	entityType, err := domain.ParseEntityType(pathValue(ctx, "type"))
	if err != nil {
		return domain.EntityKey{}, err
	}
	id := pathValue(ctx, "id")
	if id == "" {
		return domain.EntityKey{}, fmt.Errorf("missing entity id: %w", domain.ErrInvalidPayload)
	}
	return domain.EntityKey{ID: id, Type: entityType}, nil
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

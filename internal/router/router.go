package router

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	apiHandler "github.com/fastygo/relational/api/handler"
)

type Handlers struct {
	Entity       *apiHandler.EntityHandler
	Relationship *apiHandler.RelationshipHandler
	Traceability *apiHandler.TraceabilityHandler
	Compliance   *apiHandler.ComplianceHandler
	Health       *apiHandler.HealthHandler
}

func New(handlers Handlers, enableMetrics bool) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if enableMetrics {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	}

	r.POST("/api/v1/entities", handlers.Entity.Create)
	r.GET("/api/v1/entities/{type}", handlers.Entity.Query)
	r.GET("/api/v1/entities/{type}/{id}", handlers.Entity.Get)
	r.PUT("/api/v1/entities/{type}/{id}", handlers.Entity.Update)

	r.POST("/api/v1/relationships", handlers.Relationship.Create)
	r.PUT("/api/v1/relationships", handlers.Relationship.Update)
	r.DELETE("/api/v1/relationships", handlers.Relationship.Delete)
	r.GET("/api/v1/integrity/{type}/{id}", handlers.Relationship.Integrity)

	r.GET("/api/v1/traceability/{type}/{id}", handlers.Traceability.Chain)
	r.GET("/api/v1/traceability/{type}/{id}/validate", handlers.Traceability.Validate)

	// {type}/{id} initializes; {id}/assess assesses.
	r.POST("/api/v1/compliance/{type}/{id}", handlers.Compliance.Post)

	return r
}

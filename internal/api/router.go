package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	"roundtable-report/internal/api/handler"
	"roundtable-report/internal/metrics"
	"roundtable-report/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.RunHandler) {
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/*/tables", h.GetRunTables)
	// Generic run route last
	r.GET("/api/v1/runs/*", h.GetRun)

	r.GET("/metrics", metrics.Handler().ServeHTTP)
	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}

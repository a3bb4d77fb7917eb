package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler served by the API. Submissions is nil when the log is disabled.
type Handlers struct {
	Workflows   *MakeupWorkflowHandler
	Submissions *MakeupSubmissionHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts operational endpoints at the root and domain endpoints under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	if h.Metrics != nil {
		api.GET("/system/metrics", h.Metrics.Summary)
	}

	if h.Workflows != nil {
		workflows := api.Group("/makeup-workflows")
		workflows.POST("", h.Workflows.Open)
		workflows.GET("/:id", h.Workflows.Get)
		workflows.PUT("/:id/fields/:field", h.Workflows.SetField)
		workflows.PUT("/:id/note", h.Workflows.SetNote)
		workflows.POST("/:id/stages/:stage/retry", h.Workflows.Retry)
		workflows.POST("/:id/submit", h.Workflows.Submit)
		workflows.DELETE("/:id", h.Workflows.Discard)
	}

	if h.Submissions != nil {
		submissions := api.Group("/makeup-submissions")
		submissions.GET("", h.Submissions.List)
		submissions.GET("/export", h.Submissions.Export)
		submissions.GET("/:id", h.Submissions.Get)
		submissions.GET("/:id/slip", h.Submissions.Slip)
	}
}

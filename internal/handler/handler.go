package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/catalog"
	"logo-forge/internal/history"
	"logo-forge/internal/processor"
	"logo-forge/internal/progress"
	"logo-forge/internal/provider"
	"logo-forge/internal/queue/rabbitmq"
	"logo-forge/internal/repository"
	"logo-forge/internal/storage/local"
	"logo-forge/internal/worker"
	"logo-forge/internal/workflow"

	"github.com/gin-gonic/gin"
)

// Publisher queues post-processing work. *rabbitmq.Client satisfies it.
type Publisher interface {
	PublishPostProcess(msg rabbitmq.PostProcessMessage) error
}

// LinkSigner issues time-limited download links. *minio.Client satisfies it.
type LinkSigner interface {
	GetFileLink(ctx context.Context, bucket local.Bucket, objectName string, expires time.Duration) (string, error)
}

// Deps lists what the handlers need. Queue, Links, Results and Auth are optional.
type Deps struct {
	Engine     *workflow.Engine
	Repository *repository.Repository
	Progress   *progress.Store
	Catalog    *catalog.Catalog
	Registry   *provider.Registry
	History    history.Recorder
	Processor  *processor.Service
	Defaults   workflow.Defaults
	LogsDir    string

	Queue   Publisher
	Links   LinkSigner
	Results worker.ResultStore
	Auth    gin.HandlerFunc
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	return &Handler{Deps: deps}
}

// pollingPaths are requested every few seconds by the dashboard.
var pollingPaths = []string{
	"/api/v1/progress",
	"/api/v1/logs",
	"/api/v1/logs/stream",
	"/api/v1/workflow/current",
}

// AccessLog is gin's request logger writing to w, minus the polling endpoints.
func AccessLog(w io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{Output: w, SkipPaths: pollingPaths})
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	api.GET("/health", h.Health)
	api.GET("/images", h.ListImages)
	api.GET("/image/:filename", h.GetImage)
	api.GET("/image/:filename/link", h.GetImageLink)
	api.GET("/progress", h.GetProgress)
	api.GET("/workflow/current", h.CurrentWorkflow)
	api.GET("/workflow/:id", h.GetWorkflow)
	api.GET("/workflows", h.ListWorkflows)
	api.GET("/models", h.ListModels)
	api.GET("/prompts", h.ListPromptFiles)
	api.GET("/prompts/:file", h.GetPrompts)
	api.GET("/stats", h.GetStats)
	api.GET("/logs", h.GetLogs)
	api.GET("/logs/stream", h.StreamLogs)
	api.GET("/process/:request_id", h.GetProcessResult)
	api.POST("/images/download", h.DownloadImages)

	protected := api.Group("")
	if h.Auth != nil {
		protected.Use(h.Auth)
	}
	protected.DELETE("/image/:filename", h.DeleteImage)
	protected.POST("/image/:filename/delete", h.DeleteImage)
	protected.POST("/workflow/start", h.StartWorkflow)
	protected.POST("/archive", h.Archive)
	protected.POST("/process/remove-background", h.RemoveBackground)
	protected.POST("/process/convert-ico", h.ConvertICO)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"running":   h.Engine.Running(),
		"providers": h.Registry.Available(),
	})
}

// writeError maps an error onto its HTTP status. Internal errors are logged in full
// and reported generically.
func writeError(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	body := gin.H{"success": false, "message": err.Error()}

	var validation *apperr.ValidationError
	switch {
	case errors.As(err, &validation):
		body["message"] = validation.Message
		errs := validation.Errors
		if errs == nil {
			errs = []string{}
		}
		body["errors"] = errs
	case errors.Is(err, apperr.ErrJobInProgress):
		body["message"] = "A workflow is already running"
	case status == http.StatusInternalServerError:
		log.Printf("Error: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		body["message"] = "Internal server error"
	}
	c.JSON(status, body)
}

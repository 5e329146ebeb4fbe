package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"logo-forge/internal/apperr"
	"logo-forge/internal/processor"
	"logo-forge/internal/queue/rabbitmq"
	"logo-forge/internal/worker"

	"github.com/gin-gonic/gin"
)

func (h *Handler) RemoveBackground(c *gin.Context) {
	h.process(c, processor.Options{RemoveBackground: true})
}

func (h *Handler) ConvertICO(c *gin.Context) {
	h.process(c, processor.Options{CreateICO: true})
}

// process queues the request when a broker is configured and runs it inline otherwise.
func (h *Handler) process(c *gin.Context, opts processor.Options) {
	var sel selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		writeError(c, apperr.NewValidation("Invalid request body", err.Error()))
		return
	}
	files, err := h.Repository.ResolveRaw(sel.items())
	if err != nil {
		writeError(c, err)
		return
	}

	if h.Queue != nil {
		msg := rabbitmq.NewPostProcessMessage(files, opts.RemoveBackground, opts.CreateICO)
		if err := h.Queue.PublishPostProcess(msg); err != nil {
			writeError(c, apperr.Internal(err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"success":    true,
			"message":    fmt.Sprintf("Queued %d images for processing", len(files)),
			"request_id": msg.RequestID,
			"queued":     len(files),
		})
		return
	}

	if h.Processor == nil {
		writeError(c, apperr.Internal(errors.New("image processor not configured")))
		return
	}
	result := h.Processor.ProcessBatch(c.Request.Context(), files, opts)
	done := len(result.Processed) + len(result.Icons)
	log.Printf("Processed %d of %d selected images inline", done, len(files))

	message := fmt.Sprintf("Background removed from %d images", len(result.Processed))
	if opts.CreateICO {
		message = fmt.Sprintf("Converted %d images to ICO", len(result.Icons))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": done,
		"message":   message,
		"result":    result,
	})
}

func (h *Handler) GetProcessResult(c *gin.Context) {
	id := c.Param("request_id")
	if h.Results == nil {
		writeError(c, apperr.NotFound("post-processing request %s", id))
		return
	}
	result, err := worker.LoadResult(c.Request.Context(), h.Results, id)
	if errors.Is(err, worker.ErrResultNotFound) {
		writeError(c, apperr.NotFound("post-processing request %s", id))
		return
	}
	if err != nil {
		writeError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

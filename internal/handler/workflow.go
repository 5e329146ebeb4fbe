package handler

import (
	"net/http"
	"strconv"

	"logo-forge/internal/workflow"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.Progress.Read(c.Request.Context()))
}

func (h *Handler) StartWorkflow(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, err)
		return
	}
	req, err := workflow.DecodeRequest(body, h.Defaults, h.Catalog)
	if err != nil {
		writeError(c, err)
		return
	}

	job, err := h.Engine.Start(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	snapshot := job.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Workflow started successfully",
		"workflow_id": job.ID(),
		"total_tasks": snapshot.TotalTasks,
	})
}

func (h *Handler) CurrentWorkflow(c *gin.Context) {
	job, ok := h.Engine.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"running": false, "job": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": h.Engine.Running(), "job": job})
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	id := c.Param("id")
	if job, ok := h.Engine.Current(); ok && job.ID == id {
		c.JSON(http.StatusOK, job)
		return
	}
	job, err := h.History.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) ListWorkflows(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.History.ListJobs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

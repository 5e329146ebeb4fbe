package handler

import (
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/catalog"
	"logo-forge/internal/logging"

	"github.com/gin-gonic/gin"
)

const (
	logTailLines      = 20
	maxLogMessageSize = 80

	logPollInterval      = 500 * time.Millisecond
	logHeartbeatInterval = 15 * time.Second
)

type modelView struct {
	catalog.Model
	Available bool `json:"available"`
}

type logEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (h *Handler) ListModels(c *gin.Context) {
	models := h.Catalog.Models()
	out := make([]modelView, 0, len(models))
	for _, m := range models {
		out = append(out, modelView{Model: m, Available: h.Registry.Has(m.Provider)})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListPromptFiles(c *gin.Context) {
	files, err := h.Catalog.PromptFiles()
	if err != nil {
		writeError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Handler) GetPrompts(c *gin.Context) {
	prompts, err := h.Catalog.Prompts(c.Param("file"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompts)
}

func (h *Handler) GetLogs(c *gin.Context) {
	lines, err := logging.Tail(filepath.Join(h.LogsDir, logging.FileName), logTailLines)
	if err != nil {
		c.JSON(http.StatusOK, []logEntry{{Time: "00:00:00", Level: "error", Message: "Failed to read logs: " + err.Error()}})
		return
	}
	entries := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, parseLogLine(line))
	}
	c.JSON(http.StatusOK, entries)
}

// StreamLogs pushes lines appended to the service log as "log" server-sent events,
// with a "heartbeat" event while the log is quiet. It returns when the client leaves.
func (h *Handler) StreamLogs(c *gin.Context) {
	follower, err := logging.Follow(filepath.Join(h.LogsDir, logging.FileName))
	if err != nil {
		writeError(c, apperr.Internal(err))
		return
	}
	defer follower.Close()

	poll := time.NewTicker(logPollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(logHeartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("heartbeat", gin.H{"time": time.Now().Format(time.TimeOnly)})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case now := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": now.Format(time.TimeOnly)})
		case <-poll.C:
			lines, err := follower.Next()
			if err != nil {
				log.Printf("Warning: log stream stopped: %v", err)
				return false
			}
			for _, line := range lines {
				if strings.TrimSpace(line) != "" {
					c.SSEvent("log", parseLogLine(line))
				}
			}
		}
		return true
	})
}

// parseLogLine splits a standard logger line ("2006/01/02 15:04:05 message").
func parseLogLine(line string) logEntry {
	entry := logEntry{Level: "info", Message: line}
	if len(line) > 20 && line[4] == '/' && line[10] == ' ' && line[19] == ' ' {
		entry.Time = line[11:19]
		entry.Message = line[20:]
	}

	lower := strings.ToLower(entry.Message)
	switch {
	case strings.HasPrefix(lower, "warning"):
		entry.Level = "warning"
	case strings.HasPrefix(lower, "error") || strings.Contains(lower, "failed"):
		entry.Level = "error"
	}
	if runes := []rune(entry.Message); len(runes) > maxLogMessageSize {
		entry.Message = string(runes[:maxLogMessageSize]) + "..."
	}
	return entry
}

package handler

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/naming"
	"logo-forge/pkg/security"

	"github.com/gin-gonic/gin"
)

const linkExpiry = 15 * time.Minute

// selection accepts both filenames and image ids.
type selection struct {
	Filenames []string `json:"filenames"`
	ImageIDs  []string `json:"imageIds"`
}

func (s selection) items() []string {
	return append(append([]string{}, s.Filenames...), s.ImageIDs...)
}

func (h *Handler) ListImages(c *gin.Context) {
	images, err := h.Repository.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *Handler) GetImage(c *gin.Context) {
	path, err := h.Repository.Open(c.Param("filename"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.File(path)
}

func (h *Handler) GetImageLink(c *gin.Context) {
	filename := c.Param("filename")
	if h.Links == nil {
		writeError(c, apperr.NotFound("object storage link for %s", filename))
		return
	}
	bucket, err := h.Repository.Locate(filename)
	if err != nil {
		writeError(c, err)
		return
	}
	url, err := h.Links.GetFileLink(c.Request.Context(), bucket, filename, linkExpiry)
	if err != nil {
		writeError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(linkExpiry.Seconds())})
}

func (h *Handler) DeleteImage(c *gin.Context) {
	filename := c.Param("filename")
	result, err := h.Repository.Delete(c.Request.Context(), filename)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Printf("Image %s deleted by %s", filename, security.Username(c))
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Archive(c *gin.Context) {
	result, err := h.Repository.Archive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Repository.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) DownloadImages(c *gin.Context) {
	var sel selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		writeError(c, apperr.NewValidation("Invalid request body", err.Error()))
		return
	}

	var buf bytes.Buffer
	count, err := h.Repository.Zip(&buf, sel.items())
	if err != nil {
		writeError(c, err)
		return
	}
	if count == 0 {
		writeError(c, apperr.NewValidation("No valid images found"))
		return
	}

	name := fmt.Sprintf("logo_images_%s.zip", naming.Timestamp(time.Now()))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

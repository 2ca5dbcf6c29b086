package handlers

import (
	"net/http"
	"time"

	"lookout/internal/util/timezone"
	"lookout/internal/utils"
	"lookout/internal/video"

	"github.com/gin-gonic/gin"
)

// GetHealth is the liveness endpoint.
func (h *APIHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// GetStats returns system statistics plus database counters.
func (h *APIHandler) GetStats(c *gin.Context) {
	dbStats, err := h.repo.GetStatistics(timezone.Today())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect statistics"})
		return
	}

	sys := utils.GetSystemStats()
	c.JSON(http.StatusOK, gin.H{
		"system": sys,
		"memory": gin.H{
			"alloc": utils.FormatBytes(sys.MemoryAlloc),
			"sys":   utils.FormatBytes(sys.MemorySys),
		},
		"database": dbStats,
		"gallery":  gin.H{"entries": h.gallery.Len()},
	})
}

// GetSourceStatus reports the health of the video source.
func (h *APIHandler) GetSourceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Status())
}

// sourceInput is the request body for source validation and switching.
type sourceInput struct {
	URL string `json:"url" binding:"required"`
}

// ValidateSource classifies a source locator without connecting to it.
func (h *APIHandler) ValidateSource(c *gin.Context) {
	var input sourceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	desc := video.Classify(input.URL)
	c.JSON(http.StatusOK, gin.H{
		"url":   input.URL,
		"kind":  desc.Kind,
		"live":  desc.IsLive,
		"valid": desc.Kind != video.SourceUnknown,
	})
}

// ChangeSource switches the pipeline to a new video source.
func (h *APIHandler) ChangeSource(c *gin.Context) {
	var input sourceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.source.Change(input.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "source changed", "url": input.URL})
}

// ListTracks returns the pipeline's live tracks.
func (h *APIHandler) ListTracks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tracks": h.tracks.Tracks()})
}

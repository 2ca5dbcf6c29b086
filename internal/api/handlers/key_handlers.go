package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"lookout/internal/api/middleware"
	"lookout/internal/core/models"

	"github.com/gin-gonic/gin"
)

// keyInput is the request body for creating API keys.
type keyInput struct {
	Name        string     `json:"name" binding:"required"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// CreateAPIKey generates a new API key. The raw key is returned exactly once;
// only its hash is stored.
func (h *APIHandler) CreateAPIKey(c *gin.Context) {
	var input keyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate key"})
		return
	}
	rawKey := hex.EncodeToString(buf)

	key := &models.APIKey{
		Name:      input.Name,
		KeyHash:   middleware.HashKey(rawKey),
		ExpiresAt: input.ExpiresAt,
		Active:    true,
	}
	if len(input.Permissions) > 0 {
		perms, err := json.Marshal(input.Permissions)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode permissions"})
			return
		}
		key.Permissions = perms
	}
	if err := h.repo.CreateAPIKey(key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"name":       key.Name,
		"key":        rawKey,
		"expires_at": key.ExpiresAt,
	})
}

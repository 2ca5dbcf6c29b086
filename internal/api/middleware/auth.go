package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"lookout/internal/db/repository"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// APIKeyHeader carries the client's key on authenticated requests.
const APIKeyHeader = "X-API-Key"

// HashKey returns the hex-encoded SHA-256 of an API key. Only hashes are
// stored and compared.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuth validates the X-API-Key header against the stored key hashes.
// When requireKey is false the middleware passes everything through, so
// deployments behind a trusted network can run open.
func APIKeyAuth(repo repository.Repository, requireKey bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireKey {
			c.Next()
			return
		}

		rawKey := c.GetHeader(APIKeyHeader)
		if rawKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := repo.FindActiveKeyByHash(HashKey(rawKey))
		if err != nil {
			log.Errorf("API key lookup failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "key validation failed"})
			return
		}
		if key == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key expired"})
			return
		}
		if !hasWritePermission(key.Permissions) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API key lacks write permission"})
			return
		}

		if err := repo.TouchAPIKey(key.ID, time.Now()); err != nil {
			log.Warnf("Failed to record API key use: %v", err)
		}

		c.Set("api_key_name", key.Name)
		c.Next()
	}
}

// hasWritePermission checks the key's permission list. An empty list means
// unrestricted; a present list must contain "write" for mutating routes.
func hasWritePermission(permissions []byte) bool {
	if len(permissions) == 0 {
		return true
	}
	var perms []string
	if err := json.Unmarshal(permissions, &perms); err != nil {
		log.Warnf("Unreadable API key permissions: %v", err)
		return false
	}
	if len(perms) == 0 {
		return true
	}
	for _, p := range perms {
		if p == "write" {
			return true
		}
	}
	return false
}

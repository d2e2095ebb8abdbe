package fixture

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/i18n"
)

const (
	// LanguageContextKey is the key for storing language in context
	LanguageContextKey = "language"
	// RequestIDContextKey is the key for storing the request id in context
	RequestIDContextKey = "request_id"
)

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an id the client already sent
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDContextKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// AccessLog logs one line per request.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString(RequestIDContextKey)))
	}
}

// Language picks the page language from the ?lang query parameter, falling
// back to the catalog default. Unlike a real site it neither reads
// Accept-Language nor sets a cookie: a scenario that returns to the base URL
// must always get the default language back, whatever the browser locale.
func Language(catalog *i18n.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := catalog.Default()
		if q := c.Query("lang"); q != "" {
			lang = catalog.Match(q).String()
		}

		c.Set(LanguageContextKey, lang)
		c.Header("Content-Language", lang)

		c.Next()
	}
}

// GetLanguage gets the current language from context
func GetLanguage(c *gin.Context) string {
	if lang, exists := c.Get(LanguageContextKey); exists {
		if langStr, ok := lang.(string); ok {
			return langStr
		}
	}
	return ""
}

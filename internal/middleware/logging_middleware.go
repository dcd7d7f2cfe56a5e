package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey — ключ request id в контексте gin
const RequestIDKey = "request_id"

// RequestLogger логирует каждый запрос с коротким request id и таймингом
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()[:8]
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		if status >= 500 {
			log.Printf("[API] [%s] %s %s -> %d за %s (ошибка сервера)", requestID, c.Request.Method, path, status, duration)
		} else {
			log.Printf("[API] [%s] %s %s -> %d за %s", requestID, c.Request.Method, path, status, duration)
		}
	}
}

package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/enrollment-api/internal/service"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta initialises response metadata storage on the request context.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		duration := time.Since(start)
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = duration.Milliseconds()
		}
	}
}

// SetCacheHit records cache hit information for the current response.
func SetCacheHit(c *gin.Context, hit bool) {
	meta := ensureMeta(c)
	meta[cacheHitKey] = hit
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Disposition string `json:"disposition,omitempty"`
	Body        []byte `json:"body"`
}

type bodyCapture struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bodyCapture) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

// ResponseCache serves successful GET responses from Redis. Keys carry the
// given prefix so write paths can invalidate whole resource families with a
// single pattern.
func ResponseCache(cacheSvc *service.CacheService, prefix string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cacheSvc.Enabled() || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s?%s", prefix, c.Request.URL.Path, c.Request.URL.RawQuery)
		var cached cachedResponse
		if hit, _ := cacheSvc.Get(c.Request.Context(), key, &cached); hit {
			SetCacheHit(c, true)
			if cached.Disposition != "" {
				c.Header("Content-Disposition", cached.Disposition)
			}
			c.Data(cached.Status, cached.ContentType, cached.Body)
			c.Abort()
			return
		}
		SetCacheHit(c, false)

		capture := &bodyCapture{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = capture
		c.Next()

		if capture.Status() == http.StatusOK {
			entry := cachedResponse{
				Status:      capture.Status(),
				ContentType: capture.Header().Get("Content-Type"),
				Disposition: capture.Header().Get("Content-Disposition"),
				Body:        capture.buf.Bytes(),
			}
			_ = cacheSvc.Set(c.Request.Context(), key, entry, ttl)
		}
	}
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}

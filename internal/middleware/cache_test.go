package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/enrollment-api/internal/service"
	appErrors "github.com/campushq/enrollment-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.entries = nil
	return nil
}

func newCachedRouter(repo *memoryCacheRepo, hits *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cacheSvc := service.NewCacheService(repo, nil, time.Minute, nil, true)
	r := gin.New()
	r.Use(WithResponseMeta())
	group := r.Group("/reports")
	group.Use(ResponseCache(cacheSvc, "reports", time.Minute))
	group.GET("/:id", func(c *gin.Context) {
		*hits++
		c.Header("Content-Disposition", `attachment; filename="transcript_1.csv"`)
		c.Data(http.StatusOK, "text/csv", []byte("Component,Score\nfinal grade,8.00\n"))
	})
	return r
}

func TestResponseCacheReplaysDispositionHeader(t *testing.T) {
	repo := &memoryCacheRepo{}
	handlerHits := 0
	router := newCachedRouter(repo, &handlerHits)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/reports/1?format=csv", nil))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, 1, handlerHits)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/reports/1?format=csv", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, handlerHits, "second request should be served from cache")
	assert.Equal(t, first.Header().Get("Content-Disposition"), second.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestResponseCacheSkipsMutations(t *testing.T) {
	repo := &memoryCacheRepo{}
	gin.SetMode(gin.TestMode)
	cacheSvc := service.NewCacheService(repo, nil, time.Minute, nil, true)
	r := gin.New()
	r.Use(ResponseCache(cacheSvc, "reports", time.Minute))
	r.PATCH("/reports/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/reports/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.entries)
}

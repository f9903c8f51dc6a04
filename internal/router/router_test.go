package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_studio_v1/internal/controller"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestInitRoutes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0o644))

	r := gin.New()
	InitRoutes(r, controller.NewListingController(nil, nil), nil, Options{UploadsDir: dir})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "健康检查", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "本地上传文件", method: http.MethodGet, path: "/uploads/a.jpg", wantStatus: http.StatusOK},
		{name: "未登录访问会话", method: http.MethodPost, path: "/api/listing-sessions", wantStatus: http.StatusUnauthorized},
		{name: "未登录访问统计", method: http.MethodGet, path: "/api/listing-usage", wantStatus: http.StatusUnauthorized},
		{name: "未开启 seed", method: http.MethodPost, path: "/api/listing-sessions/x/seed", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestInitRoutes_SeedRegisteredOnlyWhenEnabled(t *testing.T) {
	has := func(r *gin.Engine) bool {
		for _, route := range r.Routes() {
			if route.Path == "/api/listing-sessions/:id/seed" {
				return true
			}
		}
		return false
	}

	off := gin.New()
	InitRoutes(off, controller.NewListingController(nil, nil), nil, Options{})
	assert.False(t, has(off))

	on := gin.New()
	InitRoutes(on, controller.NewListingController(nil, nil), nil, Options{EnableSeed: true})
	assert.True(t, has(on))
}

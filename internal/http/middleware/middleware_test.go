package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"tawsil/internal/http/middleware"
	"tawsil/internal/logger"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(logger.Nop()), middleware.Logging(logger.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("store down"))
		c.Status(http.StatusInternalServerError)
	})
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })
	return r
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"/panic", http.StatusInternalServerError},
		{"/fail", http.StatusInternalServerError},
		{"/ok", http.StatusOK},
		{"/missing", http.StatusNotFound},
	}
	r := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Fatalf("got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

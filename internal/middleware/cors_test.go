package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(origins))
	r.POST("/api/slots/:id/approve", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/slots/abc/approve", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowListedOrigin(t *testing.T) {
	r := corsRouter([]string{"https://lab.example"})

	w := corsRequest(r, http.MethodOptions, "https://lab.example")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", w.Code)
	}
	h := w.Header()
	if h.Get("Access-Control-Allow-Origin") != "https://lab.example" || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("unexpected headers: %v", h)
	}
	if h.Get("Access-Control-Allow-Methods") != corsAllowMethods || h.Get("Access-Control-Max-Age") != corsMaxAge {
		t.Fatalf("unexpected preflight headers: %v", h)
	}

	w = corsRequest(r, http.MethodPost, "https://lab.example")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Expose-Headers") != corsExposeHeaders {
		t.Fatalf("unexpected response: %d %v", w.Code, w.Header())
	}
}

func TestCORS_UnknownOrigin(t *testing.T) {
	r := corsRouter([]string{"https://lab.example"})

	if w := corsRequest(r, http.MethodOptions, "https://evil.example"); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 preflight, got %d", w.Code)
	}

	w := corsRequest(r, http.MethodPost, "https://evil.example")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed: %d %v", w.Code, w.Header())
	}
}

func TestCORS_OpenWithoutAllowList(t *testing.T) {
	r := corsRouter(nil)

	w := corsRequest(r, http.MethodPost, "https://any.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "*" || w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("unexpected headers: %v", w.Header())
	}

	if w := corsRequest(r, http.MethodPost, ""); w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("same-origin request must not get CORS headers")
	}
}

package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func named(name string) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(name))
	}
}

func TestMatchWildcardRoute(t *testing.T) {
	tests := []struct {
		path, pattern string
		want          bool
	}{
		{"/api/v1/runs/abc", "/api/v1/runs/*", true},
		{"/api/v1/runs/abc/errors", "/api/v1/runs/*/errors", true},
		{"/api/v1/runs/abc/tables", "/api/v1/runs/*/errors", false},
		{"/api/v1/runs", "/api/v1/runs/*", false},
		{"/swagger/index.html", "/swagger/*", true},
		{"/swagger/a/b.js", "/swagger/*", true},
		{"/api/v1/runs//errors", "/api/v1/runs/*/errors", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchWildcardRoute(tt.path, tt.pattern), "%s ~ %s", tt.path, tt.pattern)
	}
}

func TestRouterDispatch(t *testing.T) {
	r := New()
	r.POST("/api/v1/runs", named("create"))
	r.GET("/api/v1/runs", named("list"))
	r.GET("/api/v1/runs/*/errors", named("errors"))
	r.GET("/api/v1/runs/*", named("get"))

	tests := []struct {
		method, path string
		code         int
		body         string
	}{
		{http.MethodPost, "/api/v1/runs", http.StatusOK, "create"},
		{http.MethodGet, "/api/v1/runs", http.StatusOK, "list"},
		{http.MethodGet, "/api/v1/runs/42/errors", http.StatusOK, "errors"},
		{http.MethodGet, "/api/v1/runs/42", http.StatusOK, "get"},
		{http.MethodPost, "/api/v1/runs/42", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/nowhere", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.path)
		if tt.body != "" {
			assert.Equal(t, tt.body, rec.Body.String())
		}
	}
	assert.Len(t, r.Routes(), 4)
	assert.Len(t, r.Paths(), 3)
}

package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2, "X-Forwarded-For"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	first := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/ping", first).Code)
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/ping", first).Code)

	w := serve(r, "GET", "/ping", first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	other := map[string]string{"X-Forwarded-For": "198.51.100.2"}
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/ping", other).Code, "limits are per client")
}

func TestCacheAndInvalidate(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	hits := 0

	r := gin.New()
	r.Use(Invalidate(store))
	r.GET("/machines", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/machines", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusConflict) })

	w := serve(r, "GET", "/machines", nil)
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())

	w = serve(r, "GET", "/machines", nil)
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = serve(r, "GET", "/machines", map[string]string{ViewerHeader: "cust-1"})
	assert.JSONEq(t, `{"hits":2}`, w.Body.String(), "each viewer has its own entry")

	serve(r, "POST", "/fail", nil)
	w = serve(r, "GET", "/machines", nil)
	assert.JSONEq(t, `{"hits":1}`, w.Body.String(), "failed writes keep the cache")

	serve(r, "POST", "/machines", nil)
	w = serve(r, "GET", "/machines", nil)
	assert.JSONEq(t, `{"hits":3}`, w.Body.String())
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/iho/balanceledger/internal/infrastructure/metrics"
)

func TestRateLimiterPerClient(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rl := NewRateLimiter(1, 1, m)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	request := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, request("1.2.3.4:1000"))
	assert.Equal(t, http.StatusTooManyRequests, request("1.2.3.4:2000"))
	assert.Equal(t, http.StatusOK, request("5.6.7.8:1000"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits))
}

func TestGetIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", getIP(req))
}

func TestCleanupLimiters(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.getLimiter("old")
	rl.limiters["old"].lastSeen = time.Now().Add(-time.Hour)
	rl.getLimiter("fresh")

	rl.CleanupLimiters(time.Minute)

	assert.NotContains(t, rl.limiters, "old")
	assert.Contains(t, rl.limiters, "fresh")
}

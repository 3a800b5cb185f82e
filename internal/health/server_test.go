package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KafClaw/expensecat/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResolvePort(t *testing.T) {
	cases := map[string]int{
		"8080":  8080,
		" 9090": 9090,
		"":      DefaultPort,
		"abc":   DefaultPort,
		"0":     DefaultPort,
		"-1":    DefaultPort,
		"70000": DefaultPort,
		"80.5":  DefaultPort,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ResolvePort(raw), "PORT=%q", raw)
	}
}

func TestHealthReturnsOK(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestMetricsExposesCollectors(t *testing.T) {
	metrics.Requests.WithLabelValues("messageCreate", "completed").Inc()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "expensecat_requests_total")
}

func TestUnknownRouteIs404(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
	Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServerRunStopsOnCancel(t *testing.T) {
	port := freePort(t)
	srv := NewServer(port)
	assert.Equal(t, fmt.Sprintf(":%d", port), srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204"))
	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204"))
	if after-before != 2 {
		t.Fatalf("expected 2 counted requests, got %v", after-before)
	}
}

func TestObserveGatewayAndFallback(t *testing.T) {
	before := testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("azure", "ok"))
	ObserveGateway("azure", "ok", 50*time.Millisecond)
	ObserveGateway("azure", "ok", 0)
	if got := testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("azure", "ok")) - before; got != 2 {
		t.Fatalf("expected 2 gateway calls, got %v", got)
	}

	fbBefore := testutil.ToFloat64(fallbackAnswersTotal.WithLabelValues("unconfigured"))
	ObserveFallback("unconfigured")
	if got := testutil.ToFloat64(fallbackAnswersTotal.WithLabelValues("unconfigured")) - fbBefore; got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}

	SetContextItems(7)
	if got := testutil.ToFloat64(contextItems); got != 7 {
		t.Fatalf("context gauge = %v", got)
	}
}

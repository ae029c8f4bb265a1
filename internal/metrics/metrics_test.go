package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_LabelsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/widgets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/widgets/{id}", "200"))

	req := httptest.NewRequest("GET", "/widgets/123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/widgets/{id}", "200"))
	if after != before+1 {
		t.Errorf("expected one request under the route pattern label, got %v", after-before)
	}
	if n := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/widgets/123", "200")); n != 0 {
		t.Errorf("raw path must not appear as a label value, got %v", n)
	}
}

func TestMiddleware_CapturesStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/missing", "404"))

	req := httptest.NewRequest("GET", "/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/missing", "404"))
	if after != before+1 {
		t.Errorf("expected status 404 to be labeled, got %v", after-before)
	}
}

package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/n9te9/spacegraph/metrics"
)

func TestHandler_ExposesObservations(t *testing.T) {
	metrics.ObserveDatasource("astronaut", 200, 10*time.Millisecond)
	metrics.ObserveDatasource("astronaut", 0, time.Millisecond)
	metrics.ObserveSubgraphFetch("missions", "entities", errors.New("boom"), time.Millisecond)

	mux := http.NewServeMux()
	metrics.Mount(mux, true)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`spacegraph_datasource_requests_total{endpoint="astronaut",status="200"}`,
		`spacegraph_datasource_requests_total{endpoint="astronaut",status="error"}`,
		`spacegraph_gateway_subgraph_fetches_total{kind="entities",outcome="error",subgraph="missions"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestMount_Disabled(t *testing.T) {
	mux := http.NewServeMux()
	metrics.Mount(mux, false)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

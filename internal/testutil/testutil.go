// Package testutil starts the fixture-backed data source for tests.
package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/mockapi"
	"go.uber.org/zap"
)

// NewDatasource serves the embedded fixture and returns a client for it.
func NewDatasource(t testing.TB) *datasource.Client {
	t.Helper()
	srv := NewMockServer(t)
	return datasource.New(srv.URL, srv.Client(), zap.NewNop())
}

// NewFixtureDatasource serves f and returns a client for it.
func NewFixtureDatasource(t testing.TB, f *mockapi.Fixture) *datasource.Client {
	t.Helper()
	srv := httptest.NewServer(mockapi.NewHandler(f, zap.NewNop()))
	t.Cleanup(srv.Close)
	return datasource.New(srv.URL, srv.Client(), zap.NewNop())
}

// NewMockServer serves the embedded fixture until the test ends.
func NewMockServer(t testing.TB) *httptest.Server {
	t.Helper()
	f, err := mockapi.DefaultFixture()
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}

	srv := httptest.NewServer(mockapi.NewHandler(f, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

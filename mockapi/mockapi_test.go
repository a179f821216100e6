package mockapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/mockapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	f, err := mockapi.DefaultFixture()
	require.NoError(t, err)
	return mockapi.NewHandler(f, zap.NewNop())
}

func TestHandler_Routes(t *testing.T) {
	h := newHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{name: "astronaut by id", method: http.MethodGet, path: "/astronauts/1", status: http.StatusOK, body: `{"id":1,"name":"Neil Armstrong"}`},
		{name: "unknown astronaut", method: http.MethodGet, path: "/astronauts/99", status: http.StatusNotFound, body: `{}`},
		{name: "mission by id", method: http.MethodGet, path: "/missions/2", status: http.StatusOK, body: `{"id":2,"designation":"Apollo 11","startDate":"1969-07-16","endDate":"1969-07-24","crew":[1,2,3]}`},
		{name: "unknown mission", method: http.MethodGet, path: "/missions/abc", status: http.StatusNotFound, body: `{}`},
		{name: "write rejected", method: http.MethodPost, path: "/astronauts", status: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestHandler_Lists(t *testing.T) {
	h := newHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/astronauts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var astronauts []datasource.Astronaut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &astronauts))
	assert.Len(t, astronauts, 4)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var missions []datasource.Mission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missions))
	assert.Len(t, missions, 3)
}

func TestLoadFixture(t *testing.T) {
	f, err := mockapi.LoadFixture("testdata/small.json")
	require.NoError(t, err)
	assert.Equal(t, []datasource.Astronaut{{ID: 7, Name: "Sally Ride"}}, f.Astronauts)
	assert.Equal(t, []int{7}, f.Missions[0].Crew)

	_, err = mockapi.LoadFixture("testdata/missing.json")
	assert.Error(t, err)
}

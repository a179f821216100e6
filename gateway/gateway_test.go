package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	graphql "github.com/hasura/go-graphql-client"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/gateway"
	"github.com/n9te9/spacegraph/internal/testutil"
	"github.com/n9te9/spacegraph/mockapi"
	"github.com/n9te9/spacegraph/subgraph"
	"github.com/n9te9/spacegraph/subgraph/astronauts"
	"github.com/n9te9/spacegraph/subgraph/missions"
	"go.uber.org/zap"
)

type stack struct {
	astronauts *httptest.Server
	missions   *httptest.Server
}

// newStack starts both subgraphs on top of the fixture data source.
func newStack(t *testing.T) *stack {
	t.Helper()
	return newStackOn(t, testutil.NewDatasource(t))
}

func newStackOn(t *testing.T, client *datasource.Client) *stack {
	t.Helper()

	as, err := astronauts.NewSchema(client, zap.NewNop(), subgraph.Options{})
	if err != nil {
		t.Fatalf("astronauts.NewSchema failed: %v", err)
	}
	ms, err := missions.NewSchema(client, zap.NewNop(), subgraph.Options{})
	if err != nil {
		t.Fatalf("missions.NewSchema failed: %v", err)
	}

	s := &stack{
		astronauts: httptest.NewServer(subgraph.Handler("astronauts", as, zap.NewNop(), subgraph.Options{})),
		missions:   httptest.NewServer(subgraph.Handler("missions", ms, zap.NewNop(), subgraph.Options{})),
	}
	t.Cleanup(s.astronauts.Close)
	t.Cleanup(s.missions.Close)
	return s
}

func (s *stack) option() gateway.Option {
	return gateway.Option{
		Endpoint:                    "/",
		ServiceName:                 "spacegraph-gateway",
		TimeoutDuration:             "5s",
		EnableHangOverRequestHeader: true,
		EnableComplementRequestID:   true,
		EnableSchemaReload:          true,
		Retry:                       gateway.RetryOption{Attempts: 1, Timeout: "5s"},
		Services: []gateway.Service{
			{Name: "astronauts", Host: s.astronauts.URL},
			{Name: "missions", Host: s.missions.URL},
		},
	}
}

func newGateway(t *testing.T, opt gateway.Option) (*gateway.Gateway, *httptest.Server) {
	t.Helper()

	g, err := gateway.New(context.Background(), opt, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("gateway.New failed: %v", err)
	}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return g, srv
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	return got
}

func TestGateway_Query(t *testing.T) {
	s := newStack(t)
	_, srv := newGateway(t, s.option())
	client := graphql.NewClient(srv.URL, srv.Client())

	tests := []struct {
		name      string
		query     string
		variables map[string]any
		want      string
		wantErr   bool
	}{
		{
			name:  "astronaut with missions",
			query: `{ astronaut(id: "1") { name missions { designation } } }`,
			want:  `{"astronaut": {"name": "Neil Armstrong", "missions": [{"designation": "Apollo 11"}]}}`,
		},
		{
			name:  "mission crew names",
			query: `{ mission(id: "3") { designation crew { id name } } }`,
			want:  `{"mission": {"designation": "Apollo 13", "crew": [{"id": "4", "name": "Jim Lovell"}]}}`,
		},
		{
			name:      "variables",
			query:     `query ($id: ID!) { astronaut(id: $id) { name missions { designation } } }`,
			variables: map[string]any{"id": "4"},
			want:      `{"astronaut": {"name": "Jim Lovell", "missions": [{"designation": "Apollo 8"}, {"designation": "Apollo 13"}]}}`,
		},
		{
			name:  "crew missions round trip",
			query: `{ mission(id: "2") { crew { name missions { designation } } } }`,
			want: `{"mission": {"crew": [
				{"name": "Neil Armstrong", "missions": [{"designation": "Apollo 11"}]},
				{"name": "Buzz Aldrin", "missions": [{"designation": "Apollo 11"}]},
				{"name": "Michael Collins", "missions": [{"designation": "Apollo 11"}]}
			]}}`,
		},
		{
			name:  "aliases and typename",
			query: `{ first: astronaut(id: "2") { __typename who: name } }`,
			want:  `{"first": {"__typename": "Astronaut", "who": "Buzz Aldrin"}}`,
		},
		{
			name:    "unknown astronaut",
			query:   `{ astronaut(id: "99") { name } }`,
			want:    `{"astronaut": null}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := client.ExecRaw(context.Background(), tt.query, tt.variables)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExecRaw error = %v, wantErr %v", err, tt.wantErr)
			}

			want := decode(t, []byte(tt.want))
			if diff := cmp.Diff(want, decode(t, data)); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGateway_ValidationError(t *testing.T) {
	s := newStack(t)
	_, srv := newGateway(t, s.option())
	client := graphql.NewClient(srv.URL, srv.Client())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "unknown field",
			query: `{ astronaut(id: "1") { callsign } }`,
			want:  `Cannot query field "callsign" on type "Astronaut"`,
		},
		{
			name:  "introspection",
			query: `{ __schema { types { name } } }`,
			want:  "introspection is not supported",
		},
		{
			name:  "unknown fragment",
			query: `{ astronaut(id: "1") { ...Crew } }`,
			want:  `Unknown fragment "Crew"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ExecRaw(context.Background(), tt.query, nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestGateway_PartialFailure(t *testing.T) {
	s := newStack(t)
	_, srv := newGateway(t, s.option())
	s.missions.Close()

	client := graphql.NewClient(srv.URL, srv.Client())
	data, err := client.ExecRaw(context.Background(), `{ astronaut(id: "1") { name missions { designation } } }`, nil)
	if err == nil {
		t.Fatal("expected error from the stopped subgraph")
	}

	want := map[string]any{
		"astronaut": map[string]any{"name": "Neil Armstrong", "missions": nil},
	}
	if diff := cmp.Diff(want, decode(t, data)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestGateway_DanglingCrewMember(t *testing.T) {
	f, err := mockapi.DefaultFixture()
	if err != nil {
		t.Fatal(err)
	}
	f.Missions[0].Crew = []int{1, 99}

	s := newStackOn(t, testutil.NewFixtureDatasource(t, f))
	_, srv := newGateway(t, s.option())

	client := graphql.NewClient(srv.URL, srv.Client())
	data, err := client.ExecRaw(context.Background(), `{ mission(id: "1") { crew { id name } } }`, nil)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error for the dangling member, got %v", err)
	}

	want := map[string]any{
		"mission": map[string]any{"crew": []any{
			map[string]any{"id": "1", "name": "Neil Armstrong"},
			map[string]any{"id": "99", "name": nil},
		}},
	}
	if diff := cmp.Diff(want, decode(t, data)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestGateway_HTTP(t *testing.T) {
	s := newStack(t)
	_, srv := newGateway(t, s.option())

	t.Run("GET is not allowed", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL, "application/json", strings.NewReader(`{"query":`))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("unparsable query", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL, "application/json", strings.NewReader(`{"query":"}}}"}`))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var body struct {
			Errors []struct {
				Extensions map[string]any `json:"extensions"`
			} `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if len(body.Errors) == 0 || body.Errors[0].Extensions["code"] == nil {
			t.Errorf("expected a coded error, got %+v", body.Errors)
		}
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"query":"{ astronauts { id } }"}`))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Request-Id", "trace-42")

		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if got := resp.Header.Get("X-Request-Id"); got != "trace-42" {
			t.Errorf("X-Request-Id = %q, want trace-42", got)
		}
	})

	t.Run("reload", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL+gateway.ReloadPath, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var body struct {
			SubGraphs []string `json:"subgraphs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"astronauts", "missions"}, body.SubGraphs); diff != "" {
			t.Errorf("subgraphs mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGateway_ReloadKeepsEngineOnFailure(t *testing.T) {
	s := newStack(t)
	g, srv := newGateway(t, s.option())
	s.astronauts.Close()

	resp, err := srv.Client().Post(srv.URL+gateway.ReloadPath, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}

	if diff := cmp.Diff([]string{"astronauts", "missions"}, g.SubGraphNames()); diff != "" {
		t.Errorf("subgraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestGateway_ReloadDisabled(t *testing.T) {
	s := newStack(t)
	opt := s.option()
	opt.EnableSchemaReload = false
	_, srv := newGateway(t, opt)

	resp, err := srv.Client().Post(srv.URL+gateway.ReloadPath, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Errorf("reload route should not be served, got status %d", resp.StatusCode)
	}

	var body struct {
		SubGraphs []string `json:"subgraphs"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.SubGraphs != nil {
		t.Errorf("unexpected reload response %v", body.SubGraphs)
	}
}

func TestGateway_SchemaFiles(t *testing.T) {
	s := newStack(t)

	opt := s.option()
	opt.Services[0].SchemaFiles = []string{filepath.Join("..", "subgraph", "astronauts", "schema.graphql")}
	opt.Services[1].SchemaFiles = []string{filepath.Join("..", "subgraph", "missions", "schema.graphql")}

	_, srv := newGateway(t, opt)
	client := graphql.NewClient(srv.URL, srv.Client())

	data, err := client.ExecRaw(context.Background(), `{ astronaut(id: "3") { name missions { designation } } }`, nil)
	if err != nil {
		t.Fatalf("ExecRaw failed: %v", err)
	}
	want := map[string]any{
		"astronaut": map[string]any{"name": "Michael Collins", "missions": []any{map[string]any{"designation": "Apollo 11"}}},
	}
	if diff := cmp.Diff(want, decode(t, data)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.graphql")
	if err := os.WriteFile(broken, []byte("type {"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opt  gateway.Option
	}{
		{
			name: "no services",
			opt:  gateway.Option{},
		},
		{
			name: "unreachable subgraph",
			opt: gateway.Option{
				Retry:    gateway.RetryOption{Attempts: 1, Timeout: "100ms"},
				Services: []gateway.Service{{Name: "astronauts", Host: "http://127.0.0.1:1"}},
			},
		},
		{
			name: "missing schema file",
			opt: gateway.Option{
				Services: []gateway.Service{{Name: "astronauts", Host: "http://127.0.0.1:1", SchemaFiles: []string{filepath.Join(dir, "missing.graphql")}}},
			},
		},
		{
			name: "invalid schema file",
			opt: gateway.Option{
				Services: []gateway.Service{{Name: "astronauts", Host: "http://127.0.0.1:1", SchemaFiles: []string{broken}}},
			},
		},
		{
			name: "invalid timeout",
			opt: gateway.Option{
				TimeoutDuration: "soon",
				Services:        []gateway.Service{{Name: "astronauts", Host: "http://127.0.0.1:1"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := gateway.New(context.Background(), tt.opt, zap.NewNop(), nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBuildEngine(t *testing.T) {
	sdls := map[string]string{
		"astronauts": `type Astronaut @key(fields: "id") { id: ID! name: String } type Query { astronaut(id: ID!): Astronaut }`,
		"missions":   `type Mission { id: ID! } extend type Astronaut @key(fields: "id") { id: ID! @external missions: [Mission] }`,
	}
	hosts := map[string]string{"astronauts": "http://astronauts", "missions": "http://missions"}

	if _, err := gateway.BuildEngineForTest(sdls, hosts, http.DefaultClient); err != nil {
		t.Fatalf("BuildEngineForTest failed: %v", err)
	}

	sdls["missions"] = "type {"
	if _, err := gateway.BuildEngineForTest(sdls, hosts, http.DefaultClient); err == nil {
		t.Error("expected error for invalid SDL")
	}
}

func TestGateway_Poll(t *testing.T) {
	var fetches atomic.Int32
	sdlServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"_service":{"sdl":"type Query { hello: String }"}}}`)) //nolint:errcheck
	}))
	defer sdlServer.Close()

	opt := gateway.Option{
		Retry:    gateway.RetryOption{Attempts: 1, Timeout: "1s"},
		Services: []gateway.Service{{Name: "hello", Host: sdlServer.URL}},
	}

	t.Run("disabled", func(t *testing.T) {
		g, err := gateway.New(context.Background(), opt, zap.NewNop(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Poll(context.Background()); err != nil {
			t.Errorf("Poll returned %v", err)
		}
	})

	t.Run("invalid interval", func(t *testing.T) {
		opt := opt
		opt.SchemaPollInterval = "often"
		g, err := gateway.New(context.Background(), opt, zap.NewNop(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Poll(context.Background()); err == nil {
			t.Error("expected error for invalid interval")
		}
	})

	t.Run("reloads until canceled", func(t *testing.T) {
		opt := opt
		opt.SchemaPollInterval = "10ms"
		g, err := gateway.New(context.Background(), opt, zap.NewNop(), nil)
		if err != nil {
			t.Fatal(err)
		}

		before := fetches.Load()
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if err := g.Poll(ctx); err != nil {
			t.Errorf("Poll returned %v", err)
		}
		if fetches.Load() <= before {
			t.Error("expected Poll to fetch the schema again")
		}
	})
}

// Package restapi bridges the data source to plain REST routes, alone or next
// to a GraphQL endpoint on the same server.
package restapi

import (
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/requestid"
	"go.uber.org/zap"
)

const GraphQLPath = "/graphql"

type handler struct {
	client *datasource.Client
	logger *zap.Logger
}

func routes(mux *http.ServeMux, client *datasource.Client, logger *zap.Logger) {
	h := &handler{client: client, logger: logger}
	mux.HandleFunc("GET /test", h.test)
	mux.HandleFunc("GET /astronauts", h.collection("/astronauts"))
	mux.HandleFunc("GET /missions", h.collection("/missions"))
}

// NewHandler serves the REST routes only.
func NewHandler(client *datasource.Client, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	routes(mux, client, logger)
	return requestid.Middleware(logger, mux)
}

// NewCombinedHandler serves schema at /graphql next to the REST routes.
func NewCombinedHandler(schema *graphql.Schema, client *datasource.Client, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+GraphQLPath, &relay.Handler{Schema: schema})
	routes(mux, client, logger)
	return requestid.Middleware(logger, mux)
}

func (h *handler) test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("test is good!"))
}

// collection forwards to base, or to base/{id} when ?id= is given, and
// returns the upstream body unchanged.
func (h *handler) collection(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := base
		if id := r.URL.Query().Get("id"); id != "" {
			path = base + "/" + url.PathEscape(id)
		}

		status, body, err := h.client.Raw(r.Context(), path)
		if err != nil {
			h.logger.Warn("data source unreachable", zap.String("path", path), zap.Error(err))
			h.fail(w, http.StatusBadGateway, err.Error())
			return
		}

		switch {
		case status >= 200 && status < 300, status == http.StatusNotFound:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write(body)
		default:
			h.fail(w, http.StatusBadGateway, (&datasource.StatusError{URL: path, StatusCode: status}).Error())
		}
	}
}

func (h *handler) fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

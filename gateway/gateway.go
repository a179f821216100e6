package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	"github.com/n9te9/spacegraph/federation/executor"
	"github.com/n9te9/spacegraph/requestid"
	"go.uber.org/zap"
)

// ReloadPath is the admin route recomposing the supergraph on demand.
const ReloadPath = "/schema/reload"

type Service struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files,omitempty"`
}

type Option struct {
	Endpoint                    string      `yaml:"endpoint"`
	ServiceName                 string      `yaml:"service_name"`
	Port                        int         `yaml:"port"`
	TimeoutDuration             string      `yaml:"timeout_duration"`
	EnableHangOverRequestHeader bool        `yaml:"enable_hang_over_request_header"`
	EnableComplementRequestID   bool        `yaml:"enable_complement_request_id"`
	SchemaPollInterval          string      `yaml:"schema_poll_interval,omitempty"`
	EnableSchemaReload          bool        `yaml:"enable_schema_reload"`
	Retry                       RetryOption `yaml:"retry"`
	Services                    []Service   `yaml:"services"`
}

// Timeout is the per-request timeout for subgraph calls.
func (o Option) Timeout() (time.Duration, error) {
	if o.TimeoutDuration == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(o.TimeoutDuration)
}

// Gateway composes the configured subgraphs and serves the supergraph.
type Gateway struct {
	opt        Option
	logger     *zap.Logger
	httpClient *http.Client
	engine     atomic.Pointer[engine]
	handler    http.Handler
}

var _ http.Handler = (*Gateway)(nil)

// New loads every subgraph SDL and composes them. httpClient is used for all
// subgraph traffic; nil gets a client with the configured timeout.
func New(ctx context.Context, opt Option, logger *zap.Logger, httpClient *http.Client) (*Gateway, error) {
	if len(opt.Services) == 0 {
		return nil, errors.New("gateway needs at least one service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		timeout, err := opt.Timeout()
		if err != nil {
			return nil, fmt.Errorf("invalid timeout_duration: %w", err)
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	g := &Gateway{
		opt:        opt,
		logger:     logger,
		httpClient: httpClient,
	}

	if err := g.Reload(ctx); err != nil {
		return nil, err
	}

	endpoint := opt.Endpoint
	if endpoint == "" {
		endpoint = "/"
	}

	mux := http.NewServeMux()
	// the reload route shares the public listener, so it is opt-in
	if opt.EnableSchemaReload {
		mux.HandleFunc("POST "+ReloadPath, g.serveReload)
	}
	mux.HandleFunc("POST "+endpoint, g.serveGraphQL)

	g.handler = mux
	if opt.EnableComplementRequestID {
		g.handler = requestid.Middleware(logger, mux)
	}

	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (g *Gateway) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(fmt.Sprintf("invalid request body: %v", err), ""))
		return
	}

	e := g.engine.Load()
	if e == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("supergraph is not composed yet", ""))
		return
	}

	ctx := r.Context()
	if g.opt.EnableHangOverRequestHeader {
		ctx = executor.SetRequestHeaderToContext(ctx, r.Header)
	}

	p := parser.New(lexer.New(req.Query))
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		resp := &executor.Response{}
		for _, err := range errs {
			resp.Errors = append(resp.Errors, executor.GraphQLError{
				Message:    fmt.Sprint(err),
				Extensions: map[string]any{"code": "GRAPHQL_PARSE_FAILED"},
			})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if err := validate(e, doc); err != nil {
		writeJSON(w, http.StatusOK, errorResponse(err.Error(), "GRAPHQL_VALIDATION_FAILED"))
		return
	}

	plan, err := e.planner.Plan(doc)
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(err.Error(), "QUERY_PLANNING_FAILED"))
		return
	}

	resp, err := e.executor.Execute(ctx, plan, req.Variables)
	if err != nil {
		g.logger.Error("plan execution failed", zap.Error(err), zap.String("request_id", requestid.FromContext(ctx)))
		writeJSON(w, http.StatusOK, errorResponse(err.Error(), "INTERNAL_SERVER_ERROR"))
		return
	}

	if len(resp.Errors) > 0 {
		g.logger.Warn("partial response",
			zap.Int("errors", len(resp.Errors)),
			zap.String("request_id", requestid.FromContext(ctx)),
		)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) serveReload(w http.ResponseWriter, r *http.Request) {
	if err := g.Reload(r.Context()); err != nil {
		g.logger.Warn("schema reload failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse(err.Error(), ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subgraphs": g.SubGraphNames()})
}

// validate rejects selections of fields the supergraph does not expose.
func validate(e *engine, doc *ast.Document) error {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if f, ok := def.(*ast.FragmentDefinition); ok {
			fragments[f.Name.String()] = f
		}
	}

	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		rootTypeName, err := e.superGraph.RootTypeName(op)
		if err != nil {
			return err
		}
		if err := validateSelectionSet(e, op.SelectionSet, rootTypeName, fragments, map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func validateSelectionSet(e *engine, selections []ast.Selection, parentType string, fragments map[string]*ast.FragmentDefinition, visiting map[string]bool) error {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			switch fieldName {
			case "__typename":
				continue
			case "__schema", "__type":
				return errors.New("introspection is not supported by the gateway")
			}

			if e.superGraph.IsInaccessible(parentType, fieldName) {
				return fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, parentType)
			}
			fieldType, err := e.superGraph.FieldTypeName(parentType, fieldName)
			if err != nil {
				return err
			}
			if err := validateSelectionSet(e, s.SelectionSet, fieldType, fragments, visiting); err != nil {
				return err
			}

		case *ast.InlineFragment:
			typeCondition := parentType
			if s.TypeCondition != nil && s.TypeCondition.Name.String() != "" {
				typeCondition = s.TypeCondition.Name.String()
			}
			if err := validateSelectionSet(e, s.SelectionSet, typeCondition, fragments, visiting); err != nil {
				return err
			}

		case *ast.FragmentSpread:
			name := s.Name.String()
			def, ok := fragments[name]
			if !ok {
				return fmt.Errorf("Unknown fragment \"%s\"", name)
			}
			if visiting[name] {
				return fmt.Errorf("Cannot spread fragment \"%s\" within itself", name)
			}
			visiting[name] = true
			err := validateSelectionSet(e, def.SelectionSet, def.TypeCondition.Name.String(), fragments, visiting)
			delete(visiting, name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func errorResponse(message, code string) *executor.Response {
	gqlErr := executor.GraphQLError{Message: message}
	if code != "" {
		gqlErr.Extensions = map[string]any{"code": code}
	}
	return &executor.Response{Errors: []executor.GraphQLError{gqlErr}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

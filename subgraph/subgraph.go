// Package subgraph holds the federation plumbing shared by the astronauts and
// missions subgraphs: the _Any scalar, the _service resolver and the HTTP
// handler every GraphQL server in the repository is mounted behind.
package subgraph

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	gqlotel "github.com/graph-gophers/graphql-go/trace/otel"
	"github.com/n9te9/spacegraph/logging"
	"github.com/n9te9/spacegraph/requestid"
	"github.com/n9te9/spacegraph/telemetry"
	"go.uber.org/zap"
)

// FederationSDL is appended to a subgraph's schema file. It declares the
// federation directives so the schema graphql-go executes is the same text
// _service publishes.
const FederationSDL = `
directive @key(fields: String!) on OBJECT | INTERFACE
directive @extends on OBJECT | INTERFACE
directive @external on FIELD_DEFINITION

scalar _Any

type _Service {
	sdl: String!
}
`

// Any is a representation passed to _entities.
type Any struct {
	TypeName string
	Fields   map[string]interface{}
}

func (Any) ImplementsGraphQLType(name string) bool {
	return name == "_Any"
}

func (a *Any) UnmarshalGraphQL(input interface{}) error {
	var m map[string]interface{}
	switch v := input.(type) {
	case map[string]interface{}:
		m = v
	case string:
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return fmt.Errorf("failed to decode representation: %w", err)
		}
	default:
		return fmt.Errorf("invalid representation type %T", input)
	}

	typeName, _ := m["__typename"].(string)
	if typeName == "" {
		return fmt.Errorf("representation is missing __typename")
	}

	a.TypeName = typeName
	a.Fields = make(map[string]interface{}, len(m)-1)
	for k, v := range m {
		if k != "__typename" {
			a.Fields[k] = v
		}
	}
	return nil
}

// ID returns the representation's id key as a string. JSON numbers are
// accepted because gateways may forward ids unquoted.
func (a Any) ID() (string, error) {
	switch v := a.Fields["id"].(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%d", int64(v)), nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case json.Number:
		return v.String(), nil
	case nil:
		return "", fmt.Errorf("%s representation is missing id", a.TypeName)
	default:
		return "", fmt.Errorf("%s representation has invalid id %v", a.TypeName, v)
	}
}

// Service binds the _service field a subgraph declares on Query. graphql-go
// answers _service from the schema text it parsed, so sdl must be that text.
type Service struct {
	sdl string
}

func NewService(sdl string) *Service {
	return &Service{sdl: sdl}
}

func (s *Service) SDL() string {
	return s.sdl
}

type Options struct {
	Tracing telemetry.TracingSetting
}

// SchemaOptions are the graphql-go options every server in the repository
// parses its schema with.
func SchemaOptions(logger *zap.Logger, opt Options) []graphql.SchemaOpt {
	opts := []graphql.SchemaOpt{
		graphql.UseFieldResolvers(),
		graphql.MaxParallelism(20),
		graphql.Logger(&logging.GraphQLLogger{Logger: logger}),
	}
	if opt.Tracing.Enable {
		opts = append(opts, graphql.Tracer(gqlotel.DefaultTracer()))
	}
	return opts
}

// Handler serves schema over POST JSON with request ids, access logs and
// optional tracing.
func Handler(name string, schema *graphql.Schema, logger *zap.Logger, opt Options) http.Handler {
	var h http.Handler = &relay.Handler{Schema: schema}
	h = telemetry.WrapHandler(h, name, opt.Tracing)
	return requestid.Middleware(logger.With(zap.String("server", name)), h)
}

// StringPtr returns nil for "", the way optional fields are absent in the
// data source payloads.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

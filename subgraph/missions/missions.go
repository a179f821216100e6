// Package missions is the subgraph owning Mission. It extends the Astronaut
// entity with the missions it flew and hands crew members back to the gateway
// as Astronaut references.
package missions

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/subgraph"
	"go.uber.org/zap"
)

//go:embed schema.graphql
var schemaFile string

// SDL is the schema the subgraph executes and publishes through _service.
var SDL = schemaFile + subgraph.FederationSDL

type Mission struct {
	r *Resolver
	m datasource.Mission
}

func (m *Mission) ID() graphql.ID {
	return graphql.ID(strconv.Itoa(m.m.ID))
}

func (m *Mission) Designation() string {
	return m.m.Designation
}

func (m *Mission) StartDate() *string {
	return subgraph.StringPtr(m.m.StartDate)
}

func (m *Mission) EndDate() *string {
	return subgraph.StringPtr(m.m.EndDate)
}

// Crew turns the raw crew ids into Astronaut stubs carrying only the key.
func (m *Mission) Crew() *[]*Astronaut {
	m.r.logger.Info("Mission > crew", zap.Int("mission", m.m.ID), zap.Ints("crew", m.m.Crew))

	refs := datasource.CrewReferences(m.m)
	out := make([]*Astronaut, len(refs))
	for i, id := range refs {
		out[i] = &Astronaut{r: m.r, id: strconv.Itoa(id)}
	}
	return &out
}

// Astronaut is the local view of the entity: its key plus missions.
type Astronaut struct {
	r  *Resolver
	id string
}

func (a *Astronaut) ID() graphql.ID {
	return graphql.ID(a.id)
}

// Missions scans every mission and keeps those listing this astronaut.
func (a *Astronaut) Missions(ctx context.Context) (*[]*Mission, error) {
	a.r.logger.Info("Astronaut > missions", zap.String("id", a.id))

	all, err := a.r.client.Missions(ctx)
	if err != nil {
		return nil, err
	}

	return a.r.wrap(datasource.MissionsWithCrewMember(all, a.id)), nil
}

type entity struct {
	astronaut *Astronaut
}

func (e *entity) ToAstronaut() (*Astronaut, bool) {
	return e.astronaut, e.astronaut != nil
}

type Resolver struct {
	client  *datasource.Client
	logger  *zap.Logger
	service *subgraph.Service
}

func NewResolver(client *datasource.Client, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:  client,
		logger:  logger,
		service: subgraph.NewService(SDL),
	}
}

func (r *Resolver) wrap(list []datasource.Mission) *[]*Mission {
	out := make([]*Mission, len(list))
	for i, m := range list {
		out[i] = &Mission{r: r, m: m}
	}
	return &out
}

func (r *Resolver) Mission(ctx context.Context, args struct{ ID graphql.ID }) (*Mission, error) {
	r.logger.Info("query mission(id)", zap.String("id", string(args.ID)))

	m, err := r.client.Mission(ctx, string(args.ID))
	if err != nil {
		return nil, err
	}
	return &Mission{r: r, m: *m}, nil
}

func (r *Resolver) Missions(ctx context.Context) (*[]*Mission, error) {
	r.logger.Info("query missions()")

	list, err := r.client.Missions(ctx)
	if err != nil {
		return nil, err
	}
	return r.wrap(list), nil
}

// Entities resolves Astronaut references locally: the key is all this
// subgraph knows, and missions are loaded when selected.
func (r *Resolver) Entities(args struct{ Representations []subgraph.Any }) ([]*entity, error) {
	out := make([]*entity, len(args.Representations))
	for i, rep := range args.Representations {
		if rep.TypeName != "Astronaut" {
			return nil, fmt.Errorf("unexpected representation type %q", rep.TypeName)
		}
		id, err := rep.ID()
		if err != nil {
			return nil, err
		}

		r.logger.Info("Astronaut __resolveReference", zap.String("id", id))
		out[i] = &entity{astronaut: &Astronaut{r: r, id: id}}
	}
	return out, nil
}

func (r *Resolver) Service() *subgraph.Service {
	return r.service
}

func NewSchema(client *datasource.Client, logger *zap.Logger, opt subgraph.Options) (*graphql.Schema, error) {
	schema, err := graphql.ParseSchema(SDL, NewResolver(client, logger), subgraph.SchemaOptions(logger, opt)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse missions schema: %w", err)
	}
	return schema, nil
}

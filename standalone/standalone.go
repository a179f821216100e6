// Package standalone serves the astronaut graph from a single process without
// federation: one schema, with relationships resolved in-process.
package standalone

import (
	"context"
	"fmt"
	"strconv"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/subgraph"
	"go.uber.org/zap"
)

const astronautSchema = `
schema {
	query: Query
}

type Astronaut {
	id: ID!
	name: String
}

type Query {
	astronaut(id: ID!): Astronaut
	astronauts: [Astronaut]
}
`

const combinedSchema = `
schema {
	query: Query
}

type Astronaut {
	id: ID!
	name: String
	missions: [Mission]
}

type Mission {
	id: ID!
	crew: [Astronaut]
	designation: String!
	startDate: String
	endDate: String
}

type Query {
	astronaut(id: ID!): Astronaut
	astronauts: [Astronaut]
	mission(id: ID!): Mission
	missions: [Mission]
}
`

type resolver struct {
	client *datasource.Client
	logger *zap.Logger
}

// Astronaut carries its name when it was loaded from /astronauts. Crew stubs
// only carry the id and fetch the name on demand.
type Astronaut struct {
	r      *resolver
	id     string
	name   *string
	loaded bool
}

func (r *resolver) astronaut(a datasource.Astronaut) *Astronaut {
	return &Astronaut{r: r, id: strconv.Itoa(a.ID), name: subgraph.StringPtr(a.Name), loaded: true}
}

func (a *Astronaut) ID() graphql.ID {
	return graphql.ID(a.id)
}

func (a *Astronaut) Name(ctx context.Context) (*string, error) {
	if a.loaded {
		return a.name, nil
	}

	a.r.logger.Info("Astronaut > name", zap.String("id", a.id))
	loaded, err := a.r.client.Astronaut(ctx, a.id)
	if err != nil {
		return nil, err
	}
	return subgraph.StringPtr(loaded.Name), nil
}

func (a *Astronaut) Missions(ctx context.Context) (*[]*Mission, error) {
	a.r.logger.Info("Astronaut > missions", zap.String("id", a.id))

	all, err := a.r.client.Missions(ctx)
	if err != nil {
		return nil, err
	}
	return a.r.missions(datasource.MissionsWithCrewMember(all, a.id)), nil
}

type Mission struct {
	r *resolver
	m datasource.Mission
}

func (r *resolver) missions(list []datasource.Mission) *[]*Mission {
	out := make([]*Mission, len(list))
	for i, m := range list {
		out[i] = &Mission{r: r, m: m}
	}
	return &out
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

func (m *Mission) Crew() *[]*Astronaut {
	m.r.logger.Info("Mission > crew", zap.Int("mission", m.m.ID), zap.Ints("crew", m.m.Crew))

	refs := datasource.CrewReferences(m.m)
	out := make([]*Astronaut, len(refs))
	for i, id := range refs {
		out[i] = &Astronaut{r: m.r, id: strconv.Itoa(id)}
	}
	return &out
}

func (r *resolver) Astronaut(ctx context.Context, args struct{ ID graphql.ID }) (*Astronaut, error) {
	r.logger.Info("query astronaut(id)", zap.String("id", string(args.ID)))

	a, err := r.client.Astronaut(ctx, string(args.ID))
	if err != nil {
		return nil, err
	}
	return r.astronaut(*a), nil
}

func (r *resolver) Astronauts(ctx context.Context) (*[]*Astronaut, error) {
	r.logger.Info("query astronauts()")

	list, err := r.client.Astronauts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Astronaut, len(list))
	for i, a := range list {
		out[i] = r.astronaut(a)
	}
	return &out, nil
}

// combined adds the mission root fields on top of the astronaut-only resolver.
type combined struct {
	*resolver
}

func (r *combined) Mission(ctx context.Context, args struct{ ID graphql.ID }) (*Mission, error) {
	r.logger.Info("query mission(id)", zap.String("id", string(args.ID)))

	m, err := r.client.Mission(ctx, string(args.ID))
	if err != nil {
		return nil, err
	}
	return &Mission{r: r.resolver, m: *m}, nil
}

func (r *combined) Missions(ctx context.Context) (*[]*Mission, error) {
	r.logger.Info("query missions()")

	list, err := r.client.Missions(ctx)
	if err != nil {
		return nil, err
	}
	return r.missions(list), nil
}

// NewAstronautSchema is the astronaut-only server: two root queries, no relationships.
func NewAstronautSchema(client *datasource.Client, logger *zap.Logger, opt subgraph.Options) (*graphql.Schema, error) {
	r := &resolver{client: client, logger: logger}
	schema, err := graphql.ParseSchema(astronautSchema, r, subgraph.SchemaOptions(logger, opt)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse astronaut schema: %w", err)
	}
	return schema, nil
}

// NewSchema is the astronaut and missions server.
func NewSchema(client *datasource.Client, logger *zap.Logger, opt subgraph.Options) (*graphql.Schema, error) {
	r := &combined{resolver: &resolver{client: client, logger: logger}}
	schema, err := graphql.ParseSchema(combinedSchema, r, subgraph.SchemaOptions(logger, opt)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return schema, nil
}

// Package astronauts is the subgraph owning the Astronaut entity.
package astronauts

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/subgraph"
	"go.uber.org/zap"
)

//go:embed schema.graphql
var schemaFile string

// SDL is the schema the subgraph executes and publishes through _service.
var SDL = schemaFile + subgraph.FederationSDL

// Astronaut is resolved from the data source. A reference that failed to load
// keeps its key and reports err from the fields it could not fill.
type Astronaut struct {
	id   graphql.ID
	name *string
	err  error
}

func newAstronaut(a datasource.Astronaut) *Astronaut {
	return &Astronaut{
		id:   graphql.ID(strconv.Itoa(a.ID)),
		name: subgraph.StringPtr(a.Name),
	}
}

func (a *Astronaut) ID() graphql.ID {
	return a.id
}

func (a *Astronaut) Name() (*string, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.name, nil
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

func (r *Resolver) Astronaut(ctx context.Context, args struct{ ID graphql.ID }) (*Astronaut, error) {
	r.logger.Info("query astronaut(id)", zap.String("id", string(args.ID)))

	a, err := r.client.Astronaut(ctx, string(args.ID))
	if err != nil {
		return nil, err
	}
	return newAstronaut(*a), nil
}

func (r *Resolver) Astronauts(ctx context.Context) (*[]*Astronaut, error) {
	r.logger.Info("query astronauts()")

	list, err := r.client.Astronauts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Astronaut, len(list))
	for i, a := range list {
		out[i] = newAstronaut(a)
	}
	return &out, nil
}

// Entities resolves Astronaut references, one data source call per
// representation. A failed lookup only nulls the fields of its own entity.
func (r *Resolver) Entities(ctx context.Context, args struct{ Representations []subgraph.Any }) ([]*entity, error) {
	ids := make([]string, len(args.Representations))
	for i, rep := range args.Representations {
		if rep.TypeName != "Astronaut" {
			return nil, fmt.Errorf("unexpected representation type %q", rep.TypeName)
		}
		id, err := rep.ID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	out := make([]*entity, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.logger.Info("Astronaut __resolveReference", zap.String("id", id))

			a, err := r.client.Astronaut(ctx, id)
			if err != nil {
				r.logger.Warn("failed to resolve Astronaut reference", zap.String("id", id), zap.Error(err))
				out[i] = &entity{astronaut: &Astronaut{id: graphql.ID(id), err: err}}
				return
			}
			out[i] = &entity{astronaut: newAstronaut(*a)}
		}()
	}
	wg.Wait()

	return out, nil
}

func (r *Resolver) Service() *subgraph.Service {
	return r.service
}

func NewSchema(client *datasource.Client, logger *zap.Logger, opt subgraph.Options) (*graphql.Schema, error) {
	schema, err := graphql.ParseSchema(SDL, NewResolver(client, logger), subgraph.SchemaOptions(logger, opt)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse astronauts schema: %w", err)
	}
	return schema, nil
}

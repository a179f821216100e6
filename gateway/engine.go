package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/n9te9/spacegraph/federation/executor"
	"github.com/n9te9/spacegraph/federation/graph"
	"github.com/n9te9/spacegraph/federation/planner"
	"go.uber.org/zap"
)

// engine bundles the read-only components serving requests for one
// composition. A reload builds a new engine and swaps it in whole.
type engine struct {
	planner    *planner.Planner
	executor   *executor.Executor
	superGraph *graph.SuperGraph
}

// buildEngine composes sdls. Subgraphs are added in name order so that
// ownership ties are broken the same way on every build.
func buildEngine(sdls, hosts map[string]string, httpClient *http.Client) (*engine, error) {
	names := make([]string, 0, len(sdls))
	for name := range sdls {
		names = append(names, name)
	}
	sort.Strings(names)

	subGraphs := make([]*graph.SubGraph, 0, len(names))
	for _, name := range names {
		sg, err := graph.NewSubGraph(name, []byte(sdls[name]), hosts[name])
		if err != nil {
			return nil, fmt.Errorf("failed to build subgraph %q: %w", name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs)
	if err != nil {
		return nil, fmt.Errorf("composition failed: %w", err)
	}

	return &engine{
		planner:    planner.NewPlanner(superGraph),
		executor:   executor.NewExecutor(httpClient, superGraph),
		superGraph: superGraph,
	}, nil
}

// loadSDL reads the service's schema files, or asks the service itself when
// none are configured.
func (g *Gateway) loadSDL(ctx context.Context, s Service) (string, error) {
	if len(s.SchemaFiles) == 0 {
		return fetchSDL(ctx, s.Host, g.httpClient, g.opt.Retry)
	}

	var sdl []byte
	for _, f := range s.SchemaFiles {
		src, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read schema file: %w", err)
		}
		sdl = append(sdl, src...)
		sdl = append(sdl, '\n')
	}
	return string(sdl), nil
}

// Reload fetches every subgraph SDL again and swaps in a new engine. The
// current engine keeps serving when anything fails.
func (g *Gateway) Reload(ctx context.Context) error {
	sdls := make(map[string]string, len(g.opt.Services))
	hosts := make(map[string]string, len(g.opt.Services))

	for _, s := range g.opt.Services {
		sdl, err := g.loadSDL(ctx, s)
		if err != nil {
			return fmt.Errorf("subgraph %s: %w", s.Name, err)
		}
		sdls[s.Name] = sdl
		hosts[s.Name] = s.Host
	}

	e, err := buildEngine(sdls, hosts, g.httpClient)
	if err != nil {
		return err
	}
	g.engine.Store(e)

	g.logger.Info("supergraph composed", zap.Strings("subgraphs", g.SubGraphNames()))
	return nil
}

// Poll reloads the schema every schema_poll_interval until ctx is done. It
// returns immediately when no interval is configured.
func (g *Gateway) Poll(ctx context.Context) error {
	if g.opt.SchemaPollInterval == "" {
		return nil
	}
	interval, err := time.ParseDuration(g.opt.SchemaPollInterval)
	if err != nil {
		return fmt.Errorf("invalid schema_poll_interval: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := g.Reload(ctx); err != nil {
				g.logger.Warn("schema reload failed", zap.Error(err))
			}
		}
	}
}

// SubGraphNames lists the subgraphs of the current composition.
func (g *Gateway) SubGraphNames() []string {
	e := g.engine.Load()
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.superGraph.SubGraphs))
	for _, sg := range e.superGraph.SubGraphs {
		names = append(names, sg.Name)
	}
	return names
}

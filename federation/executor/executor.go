package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/spacegraph/federation/graph"
	"github.com/n9te9/spacegraph/federation/planner"
	"github.com/n9te9/spacegraph/metrics"
	"github.com/n9te9/spacegraph/requestid"
	"golang.org/x/sync/errgroup"
)

// GraphQLError is one entry of the response's errors list.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is the merged result of a plan.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

type subgraphResponse struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

// Executor runs plans against the subgraphs.
type Executor struct {
	httpClient   *http.Client
	queryBuilder *QueryBuilder
}

func NewExecutor(httpClient *http.Client, superGraph *graph.SuperGraph) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		httpClient:   httpClient,
		queryBuilder: NewQueryBuilder(superGraph),
	}
}

type execution struct {
	plan      *planner.Plan
	variables map[string]any
	data      map[string]any
	errors    []GraphQLError
	done      map[int]bool
	failed    map[int]bool
}

// target is an object an entity step resolves, with its position in the response.
type target struct {
	object map[string]any
	path   []any
}

type fetch struct {
	step            *planner.Step
	targets         []target
	representations []map[string]any
	result          *subgraphResponse
	err             error
	// blocked is set when a dependency failed, empty when there is nothing to resolve.
	blocked bool
	empty   bool
}

// Execute runs the plan wave by wave. Steps of a wave are fetched in
// parallel; their results are merged once the whole wave is back. Subgraph
// failures become errors in the response rather than a returned error.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, variables map[string]any) (*Response, error) {
	if err := validateDAG(plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	ex := &execution{
		plan:      plan,
		variables: variables,
		data:      make(map[string]any),
		done:      make(map[int]bool),
		failed:    make(map[int]bool),
	}

	for {
		wave := ex.readySteps()
		if len(wave) == 0 {
			break
		}
		e.runWave(ctx, ex, wave)
	}

	ex.data["__typename"] = plan.RootTypeName
	data, _ := prune(ex.data, plan.Selections).(map[string]any)

	return &Response{Data: data, Errors: ex.errors}, nil
}

func (ex *execution) readySteps() []*planner.Step {
	ready := make([]*planner.Step, 0)
	for _, step := range ex.plan.Steps {
		if ex.done[step.ID] {
			continue
		}
		satisfied := true
		for _, dep := range step.DependsOn {
			if !ex.done[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, step)
		}
	}
	return ready
}

func (e *Executor) runWave(ctx context.Context, ex *execution, wave []*planner.Step) {
	fetches := make([]*fetch, len(wave))
	for i, step := range wave {
		f := &fetch{step: step}
		fetches[i] = f

		for _, dep := range step.DependsOn {
			if ex.failed[dep] {
				f.blocked = true
			}
		}
		if step.Kind == planner.StepKindEntity && !f.blocked {
			f.representations, f.targets = buildRepresentations(step, collectTargets(ex.data, step.Path, nil))
			f.empty = len(f.representations) == 0
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, f := range fetches {
		if f.blocked || f.empty {
			continue
		}
		eg.Go(func() error {
			f.result, f.err = e.fetch(egCtx, ex, f)
			return nil
		})
	}
	_ = eg.Wait()

	for _, f := range fetches {
		ex.done[f.step.ID] = true
		switch {
		case f.blocked:
			ex.failed[f.step.ID] = true
		case f.empty:
		case f.err != nil:
			ex.failed[f.step.ID] = true
			ex.recordStepError(f.step, f.err)
		default:
			ex.merge(f)
		}
	}
}

func (e *Executor) fetch(ctx context.Context, ex *execution, f *fetch) (*subgraphResponse, error) {
	query, vars, err := e.queryBuilder.Build(f.step, ex.plan.OperationType, f.representations, ex.variables)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	start := time.Now()
	resp, err := e.sendRequest(ctx, f.step.SubGraph.Host, query, vars)
	metrics.ObserveSubgraphFetch(f.step.SubGraph.Name, f.step.Kind.String(), err, time.Since(start))
	return resp, err
}

// collectTargets walks path from value, descending into every list element,
// and returns the objects found at its end. Null objects are skipped.
func collectTargets(value any, path []string, at []any) []target {
	switch v := value.(type) {
	case map[string]any:
		if len(path) == 0 {
			return []target{{object: v, path: at}}
		}
		next := append(append([]any{}, at...), path[0])
		return collectTargets(v[path[0]], path[1:], next)
	case []any:
		var out []target
		for i, item := range v {
			next := append(append([]any{}, at...), i)
			out = append(out, collectTargets(item, path, next)...)
		}
		return out
	}
	return nil
}

// buildRepresentations returns the representations to send together with
// the targets they stand for. Targets of another concrete type or without key
// values are dropped.
func buildRepresentations(step *planner.Step, targets []target) ([]map[string]any, []target) {
	keys := step.SubGraph.KeyFields(step.TypeName)
	reps := make([]map[string]any, 0, len(targets))
	kept := make([]target, 0, len(targets))

	for _, t := range targets {
		if typename, ok := t.object["__typename"].(string); ok && typename != step.TypeName {
			continue
		}

		rep := map[string]any{"__typename": step.TypeName}
		complete := true
		for _, k := range keys {
			v, ok := t.object[k]
			if !ok || v == nil {
				complete = false
				break
			}
			rep[k] = v
		}
		if !complete {
			continue
		}

		reps = append(reps, rep)
		kept = append(kept, t)
	}

	return reps, kept
}

func (ex *execution) merge(f *fetch) {
	if f.step.Kind == planner.StepKindRoot {
		if f.result.Data != nil {
			deepMerge(ex.data, f.result.Data)
		}
		for _, errMap := range f.result.Errors {
			ex.recordSubgraphError(f, errMap)
		}
		return
	}

	for _, errMap := range f.result.Errors {
		ex.recordSubgraphError(f, errMap)
	}

	entities, _ := f.result.Data["_entities"].([]any)
	if entities != nil && len(entities) != len(f.targets) {
		ex.recordStepError(f.step, fmt.Errorf("subgraph returned %d entities for %d representations", len(entities), len(f.targets)))
	}

	for i, entity := range entities {
		if i >= len(f.targets) {
			break
		}
		if obj, ok := entity.(map[string]any); ok {
			deepMerge(f.targets[i].object, obj)
		}
	}
}

// deepMerge copies src into dst, merging nested objects and lists of objects
// of equal length element by element.
func deepMerge(dst, src map[string]any) {
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists || dv == nil {
			dst[k] = sv
			continue
		}

		switch d := dv.(type) {
		case map[string]any:
			if s, ok := sv.(map[string]any); ok {
				deepMerge(d, s)
				continue
			}
		case []any:
			if s, ok := sv.([]any); ok && len(s) == len(d) {
				for i := range d {
					dm, dok := d[i].(map[string]any)
					sm, sok := s[i].(map[string]any)
					if dok && sok {
						deepMerge(dm, sm)
					} else if d[i] == nil {
						d[i] = s[i]
					}
				}
				continue
			}
		}
		dst[k] = sv
	}
}

func (ex *execution) recordStepError(step *planner.Step, err error) {
	if step.Kind == planner.StepKindRoot {
		for _, sel := range step.SelectionSet {
			if field, ok := sel.(*ast.Field); ok {
				key := planner.ResponseKey(field)
				if _, exists := ex.data[key]; !exists {
					ex.data[key] = nil
				}
				ex.errors = append(ex.errors, GraphQLError{
					Message:    err.Error(),
					Path:       []any{key},
					Extensions: map[string]any{"serviceName": step.SubGraph.Name},
				})
			}
		}
		return
	}

	path := make([]any, 0, len(step.Path))
	for _, p := range step.Path {
		path = append(path, p)
	}
	ex.errors = append(ex.errors, GraphQLError{
		Message:    err.Error(),
		Path:       path,
		Extensions: map[string]any{"serviceName": step.SubGraph.Name},
	})
}

func (ex *execution) recordSubgraphError(f *fetch, errMap map[string]any) {
	message, _ := errMap["message"].(string)
	if message == "" {
		message = "Unknown error from subgraph"
	}

	errPath, _ := errMap["path"].([]any)
	var path []any
	if f.step.Kind == planner.StepKindEntity {
		path = entityErrorPath(f, errPath)
	} else {
		path = errPath
	}

	gqlErr := GraphQLError{
		Message:    message,
		Path:       path,
		Extensions: map[string]any{"serviceName": f.step.SubGraph.Name},
	}
	if extensions, ok := errMap["extensions"].(map[string]any); ok {
		for k, v := range extensions {
			gqlErr.Extensions[k] = v
		}
	}
	ex.errors = append(ex.errors, gqlErr)
}

// entityErrorPath maps a path below _entities to the position of the entity
// in the client's response.
func entityErrorPath(f *fetch, errPath []any) []any {
	base := make([]any, 0, len(f.step.Path))
	for _, p := range f.step.Path {
		base = append(base, p)
	}
	if len(errPath) < 2 || errPath[0] != "_entities" {
		return base
	}

	index, ok := errPath[1].(float64)
	if !ok {
		return base
	}

	i := int(index)
	if i < 0 || i >= len(f.targets) {
		return base
	}

	return append(append([]any{}, f.targets[i].path...), errPath[2:]...)
}

func (e *Executor) sendRequest(ctx context.Context, host, query string, variables map[string]any) (*subgraphResponse, error) {
	reqBody := map[string]any{"query": query}
	if len(variables) > 0 {
		reqBody["variables"] = variables
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	copyRequestHeader(ctx, req.Header)
	req.Header.Set("Content-Type", "application/json")
	requestid.Inject(ctx, req)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result subgraphResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, host)
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// validateDAG rejects plans whose dependencies form a cycle or point at
// unknown steps, using Kahn's algorithm.
func validateDAG(plan *planner.Plan) error {
	ids := make(map[int]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		ids[step.ID] = true
	}

	inDegree := make(map[int]int, len(plan.Steps))
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("step %d depends on unknown step %d", step.ID, dep)
			}
		}
		inDegree[step.ID] = len(step.DependsOn)
	}

	queue := make([]int, 0)
	for _, step := range plan.Steps {
		if inDegree[step.ID] == 0 {
			queue = append(queue, step.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for _, step := range plan.Steps {
			for _, dep := range step.DependsOn {
				if dep == current {
					inDegree[step.ID]--
					if inDegree[step.ID] == 0 {
						queue = append(queue, step.ID)
					}
				}
			}
		}
	}

	if visited != len(plan.Steps) {
		return errors.New("plan contains circular dependencies")
	}
	return nil
}

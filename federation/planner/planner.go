package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"
	"github.com/n9te9/spacegraph/federation/graph"
)

// StepKind tells how a step is sent to its subgraph.
type StepKind int

const (
	// StepKindRoot resolves root fields of the operation.
	StepKindRoot StepKind = iota
	// StepKindEntity resolves fields of entities through _entities.
	StepKindEntity
)

func (k StepKind) String() string {
	if k == StepKindEntity {
		return "entity"
	}
	return "root"
}

// Step is one request to one subgraph.
type Step struct {
	ID       int
	SubGraph *graph.SubGraph
	Kind     StepKind
	// TypeName is the root type for root steps and the entity type for entity steps.
	TypeName     string
	SelectionSet []ast.Selection
	// Path holds the response keys leading from data to the objects an entity
	// step resolves. Lists on the way are traversed element by element.
	Path      []string
	DependsOn []int
}

// Plan is the ordered set of steps needed to answer one operation.
type Plan struct {
	Steps         []*Step
	RootStepIDs   []int
	OperationType ast.OperationType
	RootTypeName  string
	// Selections is the client selection with fragments expanded, used to
	// shape the final response.
	Selections []ast.Selection
}

type Planner struct {
	SuperGraph *graph.SuperGraph
}

func NewPlanner(superGraph *graph.SuperGraph) *Planner {
	return &Planner{SuperGraph: superGraph}
}

// Plan builds the steps for the first operation of doc.
func (p *Planner) Plan(doc *ast.Document) (*Plan, error) {
	op := operation(doc)
	if op == nil {
		return nil, errors.New("no operation found")
	}
	if len(op.SelectionSet) == 0 {
		return nil, errors.New("empty selection")
	}

	rootTypeName, err := p.SuperGraph.RootTypeName(op)
	if err != nil {
		return nil, err
	}

	fragments := collectFragments(doc)
	selections := expandFragments(op.SelectionSet, fragments)

	b := &builder{
		superGraph: p.SuperGraph,
		plan: &Plan{
			Steps:         make([]*Step, 0),
			RootStepIDs:   make([]int, 0),
			OperationType: op.Operation,
			RootTypeName:  rootTypeName,
			Selections:    selections,
		},
		entitySteps: make(map[string]*Step),
	}

	if err := b.planRoot(selections, rootTypeName, op.Operation == ast.Mutation); err != nil {
		return nil, err
	}

	return b.plan, nil
}

type builder struct {
	superGraph  *graph.SuperGraph
	plan        *Plan
	entitySteps map[string]*Step
}

func (b *builder) newStep(sub *graph.SubGraph, kind StepKind, typeName string, path []string, dependsOn []int) *Step {
	step := &Step{
		ID:           len(b.plan.Steps),
		SubGraph:     sub,
		Kind:         kind,
		TypeName:     typeName,
		SelectionSet: make([]ast.Selection, 0),
		Path:         path,
		DependsOn:    dependsOn,
	}
	b.plan.Steps = append(b.plan.Steps, step)
	return step
}

// planRoot groups root fields by owning subgraph. Mutation fields keep their
// order: consecutive fields of one subgraph share a step and each step waits
// for the previous one.
func (b *builder) planRoot(selections []ast.Selection, rootTypeName string, serial bool) error {
	bySubGraph := make(map[string]*Step)
	var previous *Step

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}

		fieldName := field.Name.String()
		if fieldName == "__typename" {
			continue
		}

		owners := b.superGraph.SubGraphsForField(rootTypeName, fieldName)
		if len(owners) == 0 {
			return fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, rootTypeName)
		}
		owner := owners[0]

		var step *Step
		if serial {
			if previous != nil && previous.SubGraph == owner {
				step = previous
			} else {
				var deps []int
				if previous != nil {
					deps = []int{previous.ID}
				}
				step = b.newStep(owner, StepKindRoot, rootTypeName, nil, deps)
				b.plan.RootStepIDs = append(b.plan.RootStepIDs, step.ID)
			}
			previous = step
		} else {
			step = bySubGraph[owner.Name]
			if step == nil {
				step = b.newStep(owner, StepKindRoot, rootTypeName, nil, nil)
				b.plan.RootStepIDs = append(b.plan.RootStepIDs, step.ID)
				bySubGraph[owner.Name] = step
			}
		}

		planned, err := b.planField(step, field, rootTypeName, nil)
		if err != nil {
			return err
		}
		step.SelectionSet = append(step.SelectionSet, planned)
	}

	if len(b.plan.RootStepIDs) == 0 && !hasTypename(selections) {
		return errors.New("empty selection")
	}
	return nil
}

// planField copies field for step, moving the parts step cannot resolve into
// entity steps.
func (b *builder) planField(step *Step, field *ast.Field, parentType string, path []string) (*ast.Field, error) {
	out := &ast.Field{
		Alias:      field.Alias,
		Name:       field.Name,
		Arguments:  field.Arguments,
		Directives: field.Directives,
	}
	if len(field.SelectionSet) == 0 {
		return out, nil
	}

	fieldName := field.Name.String()
	fieldType, err := b.superGraph.FieldTypeName(parentType, fieldName)
	if err != nil {
		return nil, err
	}

	childProvided := make(map[string]bool)
	for _, name := range step.SubGraph.Provides(parentType, fieldName) {
		childProvided[name] = true
	}

	childPath := append(append([]string{}, path...), responseKey(field))
	children, err := b.planSelections(step, field.SelectionSet, fieldType, childPath, childProvided)
	if err != nil {
		return nil, err
	}
	out.SelectionSet = children

	return out, nil
}

func (b *builder) planSelections(step *Step, selections []ast.Selection, parentType string, path []string, provided map[string]bool) ([]ast.Selection, error) {
	result := make([]ast.Selection, 0, len(selections))
	var keyFields []string

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}

		fieldName := field.Name.String()
		if fieldName == "__typename" || provided[fieldName] || b.superGraph.CanResolve(step.SubGraph, parentType, fieldName) {
			planned, err := b.planField(step, field, parentType, path)
			if err != nil {
				return nil, err
			}
			result = append(result, planned)
			continue
		}

		owners := b.superGraph.SubGraphsForField(parentType, fieldName)
		if len(owners) == 0 {
			return nil, fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, parentType)
		}
		target := owners[0]

		keys := target.KeyFields(parentType)
		if len(keys) == 0 {
			return nil, fmt.Errorf("field %s.%s is resolved by %s, which does not declare %s as an entity", parentType, fieldName, target.Name, parentType)
		}
		for _, k := range keys {
			if !b.superGraph.CanResolve(step.SubGraph, parentType, k) {
				return nil, fmt.Errorf("subgraph %s cannot provide key field %s.%s for %s", step.SubGraph.Name, parentType, k, target.Name)
			}
		}
		keyFields = appendMissing(keyFields, keys...)

		entity := b.entityStep(step, target, parentType, path)
		planned, err := b.planField(entity, field, parentType, path)
		if err != nil {
			return nil, err
		}
		entity.SelectionSet = append(entity.SelectionSet, planned)
	}

	if len(keyFields) > 0 {
		result = injectFields(result, append([]string{"__typename"}, keyFields...))
	}

	return result, nil
}

// entityStep returns the step resolving typeName objects found at path in
// target, creating it on first use. Boundary fields sharing a parent, a path
// and a target are fetched together.
func (b *builder) entityStep(parent *Step, target *graph.SubGraph, typeName string, path []string) *Step {
	key := fmt.Sprintf("%d:%s:%s:%s", parent.ID, target.Name, typeName, strings.Join(path, "."))
	if step, ok := b.entitySteps[key]; ok {
		return step
	}

	step := b.newStep(target, StepKindEntity, typeName, append([]string{}, path...), []int{parent.ID})
	b.entitySteps[key] = step
	return step
}

// injectFields appends the named fields unless already selected without an alias.
func injectFields(selections []ast.Selection, names []string) []ast.Selection {
	present := make(map[string]bool)
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok && responseKey(f) == f.Name.String() {
			present[f.Name.String()] = true
		}
	}

	for _, name := range names {
		if present[name] {
			continue
		}
		present[name] = true
		selections = append(selections, newField(name))
	}
	return selections
}

func newField(name string) *ast.Field {
	return &ast.Field{
		Name: &ast.Name{
			Token: token.Token{Type: token.IDENT, Literal: name},
			Value: name,
		},
	}
}

func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func hasTypename(selections []ast.Selection) bool {
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok && f.Name.String() == "__typename" {
			return true
		}
	}
	return false
}

// ResponseKey is the key a field takes in the response: its alias if any.
func ResponseKey(field *ast.Field) string {
	return responseKey(field)
}

func responseKey(field *ast.Field) string {
	if field.Alias != nil && field.Alias.String() != "" {
		return field.Alias.String()
	}
	return field.Name.String()
}

func operation(doc *ast.Document) *ast.OperationDefinition {
	if doc == nil {
		return nil
	}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

func collectFragments(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if f, ok := def.(*ast.FragmentDefinition); ok {
			fragments[f.Name.String()] = f
		}
	}
	return fragments
}

// expandFragments inlines fragment spreads and inline fragments so that only
// fields remain.
func expandFragments(selections []ast.Selection, fragments map[string]*ast.FragmentDefinition) []ast.Selection {
	result := make([]ast.Selection, 0, len(selections))

	for _, selection := range selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if len(sel.SelectionSet) == 0 {
				result = append(result, sel)
				continue
			}
			result = append(result, &ast.Field{
				Alias:        sel.Alias,
				Name:         sel.Name,
				Arguments:    sel.Arguments,
				Directives:   sel.Directives,
				SelectionSet: expandFragments(sel.SelectionSet, fragments),
			})
		case *ast.InlineFragment:
			result = append(result, expandFragments(sel.SelectionSet, fragments)...)
		case *ast.FragmentSpread:
			if def, ok := fragments[sel.Name.String()]; ok {
				result = append(result, expandFragments(def.SelectionSet, fragments)...)
			}
		}
	}

	return result
}

package graph

import (
	"errors"
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"
)

// SuperGraph is the composition of every subgraph: one merged schema plus the
// map telling which subgraphs can resolve each field.
type SuperGraph struct {
	SubGraphs []*SubGraph
	Schema    *ast.Document
	Ownership map[string][]*SubGraph
}

// NewSuperGraph composes subGraphs. The result does not depend on their order.
func NewSuperGraph(subGraphs []*SubGraph) (*SuperGraph, error) {
	if len(subGraphs) == 0 {
		return nil, errors.New("no subgraphs to compose")
	}

	sg := &SuperGraph{
		SubGraphs: subGraphs,
		Schema:    &ast.Document{Definitions: make([]ast.Definition, 0)},
		Ownership: make(map[string][]*SubGraph),
	}

	// Definitions first so that an extension always finds its base type.
	for _, sub := range subGraphs {
		for _, def := range sub.Schema.Definitions {
			if _, ok := def.(*ast.ObjectTypeExtension); !ok {
				sg.mergeDefinition(def)
			}
		}
	}
	for _, sub := range subGraphs {
		for _, def := range sub.Schema.Definitions {
			if ext, ok := def.(*ast.ObjectTypeExtension); ok {
				sg.mergeExtension(ext)
			}
		}
	}

	sg.buildOwnership()
	return sg, nil
}

func (sg *SuperGraph) mergeDefinition(def ast.Definition) {
	switch d := def.(type) {
	case *ast.ObjectTypeDefinition:
		if existing := sg.objectType(d.Name.String()); existing != nil {
			existing.Fields = mergeFields(existing.Fields, d.Fields)
			existing.Directives = append(existing.Directives, copyDirectives(d.Directives)...)
			return
		}
		sg.Schema.Definitions = append(sg.Schema.Definitions, &ast.ObjectTypeDefinition{
			Name:       d.Name,
			Interfaces: d.Interfaces,
			Fields:     mergeFields(nil, d.Fields),
			Directives: copyDirectives(d.Directives),
		})
	case *ast.InterfaceTypeDefinition:
		for _, existing := range sg.Schema.Definitions {
			if e, ok := existing.(*ast.InterfaceTypeDefinition); ok && e.Name.String() == d.Name.String() {
				e.Fields = mergeFields(e.Fields, d.Fields)
				return
			}
		}
		sg.Schema.Definitions = append(sg.Schema.Definitions, d)
	case *ast.EnumTypeDefinition:
		for _, existing := range sg.Schema.Definitions {
			if e, ok := existing.(*ast.EnumTypeDefinition); ok && e.Name.String() == d.Name.String() {
				e.Values = append(e.Values, d.Values...)
				return
			}
		}
		sg.Schema.Definitions = append(sg.Schema.Definitions, d)
	case *ast.UnionTypeDefinition:
		for _, existing := range sg.Schema.Definitions {
			if e, ok := existing.(*ast.UnionTypeDefinition); ok && e.Name.String() == d.Name.String() {
				e.Types = append(e.Types, d.Types...)
				return
			}
		}
		sg.Schema.Definitions = append(sg.Schema.Definitions, d)
	case *ast.InputObjectTypeDefinition:
		for _, existing := range sg.Schema.Definitions {
			if e, ok := existing.(*ast.InputObjectTypeDefinition); ok && e.Name.String() == d.Name.String() {
				return
			}
		}
		sg.Schema.Definitions = append(sg.Schema.Definitions, d)
	case *ast.ScalarTypeDefinition:
		for _, existing := range sg.Schema.Definitions {
			if e, ok := existing.(*ast.ScalarTypeDefinition); ok && e.Name.String() == d.Name.String() {
				return
			}
		}
		sg.Schema.Definitions = append(sg.Schema.Definitions, d)
	case *ast.SchemaDefinition:
		sg.Schema.Definitions = append(sg.Schema.Definitions, d)
	}
}

// mergeExtension adds the extension's fields to the composed type, creating
// the type when no subgraph defines it.
func (sg *SuperGraph) mergeExtension(ext *ast.ObjectTypeExtension) {
	if existing := sg.objectType(ext.Name.String()); existing != nil {
		existing.Fields = mergeFields(existing.Fields, ext.Fields)
		existing.Directives = append(existing.Directives, copyDirectives(ext.Directives)...)
		return
	}

	sg.Schema.Definitions = append(sg.Schema.Definitions, &ast.ObjectTypeDefinition{
		Name:       ext.Name,
		Fields:     mergeFields(nil, ext.Fields),
		Directives: copyDirectives(ext.Directives),
	})
}

func (sg *SuperGraph) objectType(name string) *ast.ObjectTypeDefinition {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.ObjectTypeDefinition); ok && d.Name.String() == name {
			return d
		}
	}
	return nil
}

// mergeFields appends the fields of add missing from existing, keeping the
// order in which fields were first seen.
func mergeFields(existing, add []*ast.FieldDefinition) []*ast.FieldDefinition {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]*ast.FieldDefinition, 0, len(existing)+len(add))
	for _, f := range existing {
		seen[f.Name.String()] = true
		out = append(out, f)
	}
	for _, f := range add {
		if seen[f.Name.String()] {
			continue
		}
		seen[f.Name.String()] = true
		out = append(out, &ast.FieldDefinition{
			Name:       f.Name,
			Arguments:  f.Arguments,
			Type:       f.Type,
			Directives: copyDirectives(f.Directives),
		})
	}
	return out
}

func copyDirectives(directives []*ast.Directive) []*ast.Directive {
	if directives == nil {
		return nil
	}
	out := make([]*ast.Directive, len(directives))
	for i, d := range directives {
		out[i] = &ast.Directive{Name: d.Name, Arguments: d.Arguments}
	}
	return out
}

func (sg *SuperGraph) buildOwnership() {
	for _, def := range sg.Schema.Definitions {
		obj, ok := def.(*ast.ObjectTypeDefinition)
		if !ok {
			continue
		}

		typeName := obj.Name.String()
		for _, field := range obj.Fields {
			fieldName := field.Name.String()
			key := typeName + "." + fieldName

			var overriddenFrom string
			for _, sub := range sg.SubGraphs {
				if e, ok := sub.Entity(typeName); ok {
					if f, ok := e.Fields[fieldName]; ok && f.Override != "" {
						overriddenFrom = f.Override
					}
				}
			}

			for _, sub := range sg.SubGraphs {
				if sub.Name == overriddenFrom {
					continue
				}
				if declaresField(sub, typeName, fieldName) {
					sg.Ownership[key] = append(sg.Ownership[key], sub)
				}
			}
		}
	}
}

// declaresField reports whether sub resolves typeName.fieldName itself,
// i.e. declares it without @external.
func declaresField(sub *SubGraph, typeName, fieldName string) bool {
	for _, f := range sub.fieldDefinitions(typeName) {
		if f.Name.String() == fieldName {
			return !hasDirective(f.Directives, "external")
		}
	}
	return false
}

// SubGraphsForField returns the subgraphs able to resolve typeName.fieldName.
func (sg *SuperGraph) SubGraphsForField(typeName, fieldName string) []*SubGraph {
	return sg.Ownership[typeName+"."+fieldName]
}

// CanResolve reports whether sub can return typeName.fieldName inside its own
// response. Besides owned fields this covers the fields of its entity keys,
// which every subgraph carrying a reference knows.
func (sg *SuperGraph) CanResolve(sub *SubGraph, typeName, fieldName string) bool {
	if fieldName == "__typename" {
		return true
	}
	for _, owner := range sg.SubGraphsForField(typeName, fieldName) {
		if owner == sub {
			return true
		}
	}
	for _, k := range sub.KeyFields(typeName) {
		if k == fieldName {
			return true
		}
	}
	return false
}

// EntityOwner returns the subgraph that defines typeName as a resolvable
// entity, preferring a plain definition over an extension.
func (sg *SuperGraph) EntityOwner(typeName string) *SubGraph {
	for _, sub := range sg.SubGraphs {
		if e, ok := sub.Entity(typeName); ok && !e.IsExtension() && e.IsResolvable() {
			return sub
		}
	}
	for _, sub := range sg.SubGraphs {
		if e, ok := sub.Entity(typeName); ok && e.IsResolvable() {
			return sub
		}
	}
	return nil
}

// FieldDefinition returns the composed definition of typeName.fieldName.
func (sg *SuperGraph) FieldDefinition(typeName, fieldName string) (*ast.FieldDefinition, bool) {
	obj := sg.objectType(typeName)
	if obj == nil {
		return nil, false
	}
	for _, f := range obj.Fields {
		if f.Name.String() == fieldName {
			return f, true
		}
	}
	return nil, false
}

// FieldTypeName returns the named type of typeName.fieldName with list and
// non-null wrappers removed.
func (sg *SuperGraph) FieldTypeName(typeName, fieldName string) (string, error) {
	if fieldName == "__typename" {
		return "String", nil
	}
	f, ok := sg.FieldDefinition(typeName, fieldName)
	if !ok {
		return "", fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, typeName)
	}
	return NamedType(f.Type), nil
}

// IsInaccessible reports whether any subgraph marks typeName.fieldName @inaccessible.
func (sg *SuperGraph) IsInaccessible(typeName, fieldName string) bool {
	for _, sub := range sg.SubGraphs {
		for _, f := range sub.fieldDefinitions(typeName) {
			if f.Name.String() == fieldName && hasDirective(f.Directives, "inaccessible") {
				return true
			}
		}
	}
	return false
}

// RootTypeName maps an operation to its root type, honoring a schema
// definition that renames it.
func (sg *SuperGraph) RootTypeName(op *ast.OperationDefinition) (string, error) {
	var name string
	switch op.Operation {
	case ast.Query:
		name = "Query"
	case ast.Mutation:
		name = "Mutation"
	case ast.Subscription:
		name = "Subscription"
	default:
		return "", fmt.Errorf("unknown operation type: %v", op.Operation)
	}

	for _, def := range sg.Schema.Definitions {
		sd, ok := def.(*ast.SchemaDefinition)
		if !ok {
			continue
		}
		for _, ot := range sd.OperationTypes {
			if (ot.Operation == token.QUERY && op.Operation == ast.Query) ||
				(ot.Operation == token.MUTATION && op.Operation == ast.Mutation) ||
				(ot.Operation == token.SUBSCRIPTION && op.Operation == ast.Subscription) {
				name = ot.Type.Name.String()
			}
		}
	}
	return name, nil
}

// NamedType unwraps list and non-null wrappers.
func NamedType(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return NamedType(typ.Type)
	case *ast.NonNullType:
		return NamedType(typ.Type)
	}
	return ""
}

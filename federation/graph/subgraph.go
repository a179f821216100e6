package graph

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// EntityKey is one @key directive of an entity.
type EntityKey struct {
	FieldSet   string
	Resolvable bool
}

// Fields splits the key's field set. Nested selections are not supported.
func (k EntityKey) Fields() []string {
	return strings.Fields(k.FieldSet)
}

// Field is a field of an entity as one subgraph declares it.
type Field struct {
	Name     string
	Type     ast.Type
	Requires []string
	Provides []string
	Override string
	Tags     []string

	external     bool
	shareable    bool
	inaccessible bool
}

func (f *Field) IsExternal() bool     { return f.external }
func (f *Field) IsShareable() bool    { return f.shareable }
func (f *Field) IsInaccessible() bool { return f.inaccessible }

// Entity is an object type carrying @key in one subgraph.
type Entity struct {
	Keys      []EntityKey
	Fields    map[string]*Field
	extension bool
}

// IsExtension reports whether the subgraph declared the entity with
// `extend type` or @extends.
func (e *Entity) IsExtension() bool {
	return e.extension
}

// IsResolvable reports whether at least one key can be used for _entities.
func (e *Entity) IsResolvable() bool {
	for _, k := range e.Keys {
		if k.Resolvable {
			return true
		}
	}
	return false
}

// SubGraph is one federated service: its name, the URL it answers GraphQL on
// and the SDL it published.
type SubGraph struct {
	Name     string
	Host     string
	Schema   *ast.Document
	entities map[string]*Entity
}

// NewSubGraph parses src and collects the entities it declares or extends.
func NewSubGraph(name string, src []byte, host string) (*SubGraph, error) {
	l := lexer.New(string(src))
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("subgraph %s: parse error: %v", name, p.Errors())
	}

	stripFederation(doc)

	sg := &SubGraph{
		Name:     name,
		Host:     host,
		Schema:   doc,
		entities: make(map[string]*Entity),
	}

	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if hasDirective(d.Directives, "key") {
				sg.entities[d.Name.String()] = newEntity(d.Directives, d.Fields, hasDirective(d.Directives, "extends"))
			}
		case *ast.ObjectTypeExtension:
			if hasDirective(d.Directives, "key") {
				sg.entities[d.Name.String()] = newEntity(d.Directives, d.Fields, true)
			}
		}
	}

	return sg, nil
}

// federationTypes are the subgraph entry points a published SDL carries for
// the gateway's own use. They never reach the supergraph.
var federationTypes = map[string]bool{
	"_Any":     true,
	"_Entity":  true,
	"_Service": true,
	"FieldSet": true,
}

var federationFields = map[string]bool{
	"_entities": true,
	"_service":  true,
}

// stripFederation drops directive declarations, the _Any/_Entity/_Service
// types and the _entities/_service root fields from doc.
func stripFederation(doc *ast.Document) {
	defs := doc.Definitions[:0]
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.DirectiveDefinition:
			continue
		case *ast.ScalarTypeDefinition:
			if federationTypes[d.Name.String()] {
				continue
			}
		case *ast.UnionTypeDefinition:
			if federationTypes[d.Name.String()] {
				continue
			}
		case *ast.ObjectTypeDefinition:
			if federationTypes[d.Name.String()] {
				continue
			}
			d.Fields = withoutFederationFields(d.Fields)
		case *ast.ObjectTypeExtension:
			d.Fields = withoutFederationFields(d.Fields)
		}
		defs = append(defs, def)
	}
	doc.Definitions = defs
}

func withoutFederationFields(fields []*ast.FieldDefinition) []*ast.FieldDefinition {
	out := fields[:0]
	for _, f := range fields {
		if !federationFields[f.Name.String()] {
			out = append(out, f)
		}
	}
	return out
}

func newEntity(directives []*ast.Directive, fields []*ast.FieldDefinition, extension bool) *Entity {
	e := &Entity{
		Keys:      parseEntityKeys(directives),
		Fields:    make(map[string]*Field, len(fields)),
		extension: extension,
	}
	for _, f := range fields {
		e.Fields[f.Name.String()] = parseField(f)
	}
	return e
}

func (sg *SubGraph) Entity(name string) (*Entity, bool) {
	e, ok := sg.entities[name]
	return e, ok
}

func (sg *SubGraph) Entities() map[string]*Entity {
	return sg.entities
}

// KeyFields returns the fields of the first key of typeName, or nil when the
// subgraph does not know the type as an entity.
func (sg *SubGraph) KeyFields(typeName string) []string {
	e, ok := sg.entities[typeName]
	if !ok || len(e.Keys) == 0 {
		return nil
	}
	return e.Keys[0].Fields()
}

// ArgumentType returns the declared type of an argument, looking at both
// definitions and extensions of typeName.
func (sg *SubGraph) ArgumentType(typeName, fieldName, argName string) string {
	for _, f := range sg.fieldDefinitions(typeName) {
		if f.Name.String() != fieldName {
			continue
		}
		for _, arg := range f.Arguments {
			if arg.Name.String() == argName {
				return arg.Type.String()
			}
		}
	}
	return ""
}

// Provides returns the @provides field set of typeName.fieldName.
func (sg *SubGraph) Provides(typeName, fieldName string) []string {
	for _, f := range sg.fieldDefinitions(typeName) {
		if f.Name.String() == fieldName {
			return parseField(f).Provides
		}
	}
	return nil
}

func (sg *SubGraph) fieldDefinitions(typeName string) []*ast.FieldDefinition {
	var fields []*ast.FieldDefinition
	for _, def := range sg.Schema.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if d.Name.String() == typeName {
				fields = append(fields, d.Fields...)
			}
		case *ast.ObjectTypeExtension:
			if d.Name.String() == typeName {
				fields = append(fields, d.Fields...)
			}
		}
	}
	return fields
}

func parseEntityKeys(directives []*ast.Directive) []EntityKey {
	var keys []EntityKey
	for _, d := range directives {
		if d.Name != "key" {
			continue
		}

		key := EntityKey{Resolvable: true}
		for _, arg := range d.Arguments {
			switch arg.Name.String() {
			case "fields":
				key.FieldSet = unquote(arg.Value.String())
			case "resolvable":
				key.Resolvable = arg.Value.String() != "false"
			}
		}
		keys = append(keys, key)
	}
	return keys
}

func parseField(def *ast.FieldDefinition) *Field {
	f := &Field{
		Name: def.Name.String(),
		Type: def.Type,
	}

	for _, d := range def.Directives {
		switch d.Name {
		case "external":
			f.external = true
		case "shareable":
			f.shareable = true
		case "inaccessible":
			f.inaccessible = true
		case "requires":
			if len(d.Arguments) > 0 {
				f.Requires = strings.Fields(unquote(d.Arguments[0].Value.String()))
			}
		case "provides":
			if len(d.Arguments) > 0 {
				f.Provides = strings.Fields(unquote(d.Arguments[0].Value.String()))
			}
		case "override":
			for _, arg := range d.Arguments {
				if arg.Name.String() == "from" {
					f.Override = unquote(arg.Value.String())
				}
			}
		case "tag":
			for _, arg := range d.Arguments {
				if arg.Name.String() == "name" {
					f.Tags = append(f.Tags, unquote(arg.Value.String()))
				}
			}
		}
	}

	return f
}

func unquote(s string) string {
	return strings.Trim(s, "\"")
}

func hasDirective(directives []*ast.Directive, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}

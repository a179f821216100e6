package executor

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/spacegraph/federation/graph"
	"github.com/n9te9/spacegraph/federation/planner"
)

// QueryBuilder renders steps as GraphQL documents for their subgraph.
type QueryBuilder struct {
	superGraph *graph.SuperGraph
}

func NewQueryBuilder(superGraph *graph.SuperGraph) *QueryBuilder {
	return &QueryBuilder{superGraph: superGraph}
}

// Build returns the query for step and the variables it needs. Root steps
// become a plain operation; entity steps become an _entities query over
// representations.
func (qb *QueryBuilder) Build(
	step *planner.Step,
	operationType ast.OperationType,
	representations []map[string]any,
	variables map[string]any,
) (string, map[string]any, error) {
	if step.Kind == planner.StepKindEntity {
		return qb.buildEntityQuery(step, representations, variables)
	}
	return qb.buildRootQuery(step, operationType, variables)
}

func (qb *QueryBuilder) buildRootQuery(step *planner.Step, operationType ast.OperationType, variables map[string]any) (string, map[string]any, error) {
	varTypes := make(map[string]string)
	qb.collectVariables(step, step.SelectionSet, step.TypeName, varTypes, variables)

	opType := string(operationType)
	if opType == "" {
		opType = "query"
	}

	var sb strings.Builder
	sb.WriteString(opType)
	writeVariableDefinitions(&sb, varTypes, nil)
	sb.WriteString(" {")
	writeSelections(&sb, step.SelectionSet)
	sb.WriteString("}")

	return sb.String(), usedVariables(varTypes, variables), nil
}

func (qb *QueryBuilder) buildEntityQuery(step *planner.Step, representations []map[string]any, variables map[string]any) (string, map[string]any, error) {
	if len(representations) == 0 {
		return "", nil, errors.New("representations cannot be empty for entity query")
	}

	varTypes := make(map[string]string)
	qb.collectVariables(step, step.SelectionSet, step.TypeName, varTypes, variables)

	var sb strings.Builder
	sb.WriteString("query")
	writeVariableDefinitions(&sb, varTypes, []string{"$representations: [_Any!]!"})
	sb.WriteString(" {_entities(representations: $representations) {... on ")
	sb.WriteString(step.TypeName)
	sb.WriteString(" {")
	writeSelections(&sb, step.SelectionSet)
	sb.WriteString("}}}")

	vars := usedVariables(varTypes, variables)
	vars["representations"] = representations
	return sb.String(), vars, nil
}

// collectVariables records the type of every variable used by selections,
// taken from the subgraph's argument definitions and inferred from the value
// otherwise.
func (qb *QueryBuilder) collectVariables(step *planner.Step, selections []ast.Selection, parentType string, varTypes map[string]string, variables map[string]any) {
	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}

		fieldName := field.Name.String()
		for _, arg := range field.Arguments {
			if v, ok := arg.Value.(*ast.Variable); ok {
				if t := step.SubGraph.ArgumentType(parentType, fieldName, arg.Name.String()); t != "" {
					varTypes[v.Name] = t
					continue
				}
			}
			collectNestedVariables(arg.Value, varTypes, variables)
		}

		if len(field.SelectionSet) > 0 {
			fieldType, err := qb.superGraph.FieldTypeName(parentType, fieldName)
			if err != nil {
				continue
			}
			qb.collectVariables(step, field.SelectionSet, fieldType, varTypes, variables)
		}
	}
}

func collectNestedVariables(val ast.Value, varTypes map[string]string, variables map[string]any) {
	switch v := val.(type) {
	case *ast.Variable:
		if _, ok := varTypes[v.Name]; !ok {
			varTypes[v.Name] = inferVariableType(variables[v.Name])
		}
	case *ast.ListValue:
		for _, item := range v.Values {
			collectNestedVariables(item, varTypes, variables)
		}
	case *ast.ObjectValue:
		for _, f := range v.Fields {
			collectNestedVariables(f.Value, varTypes, variables)
		}
	}
}

func inferVariableType(value any) string {
	switch v := value.(type) {
	case bool:
		return "Boolean"
	case int, int32, int64:
		return "Int"
	case float32:
		return "Float"
	case float64:
		if v == float64(int64(v)) {
			return "Int"
		}
		return "Float"
	case []any:
		if len(v) > 0 {
			return "[" + inferVariableType(v[0]) + "]"
		}
	}
	return "String"
}

func writeVariableDefinitions(sb *strings.Builder, varTypes map[string]string, extra []string) {
	names := make([]string, 0, len(varTypes))
	for name := range varTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := append([]string{}, extra...)
	for _, name := range names {
		defs = append(defs, "$"+name+": "+varTypes[name])
	}
	if len(defs) == 0 {
		return
	}

	sb.WriteString("(")
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString(")")
}

func usedVariables(varTypes map[string]string, variables map[string]any) map[string]any {
	vars := make(map[string]any, len(varTypes)+1)
	for name := range varTypes {
		if v, ok := variables[name]; ok {
			vars[name] = v
		}
	}
	return vars
}

func writeSelections(sb *strings.Builder, selections []ast.Selection) {
	first := true
	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if !first {
			sb.WriteString(" ")
		}
		first = false
		writeField(sb, field)
	}
}

func writeField(sb *strings.Builder, field *ast.Field) {
	if field.Alias != nil && field.Alias.String() != "" {
		sb.WriteString(field.Alias.String())
		sb.WriteString(": ")
	}
	sb.WriteString(field.Name.String())

	if len(field.Arguments) > 0 {
		sb.WriteString("(")
		for i, arg := range field.Arguments {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(arg.Name.String())
			sb.WriteString(": ")
			writeValue(sb, arg.Value)
		}
		sb.WriteString(")")
	}

	if len(field.SelectionSet) > 0 {
		sb.WriteString(" {")
		writeSelections(sb, field.SelectionSet)
		sb.WriteString("}")
	}
}

func writeValue(sb *strings.Builder, val ast.Value) {
	switch v := val.(type) {
	case *ast.StringValue:
		quoted, err := json.Marshal(v.Value)
		if err != nil {
			quoted = []byte(strconv.Quote(v.Value))
		}
		sb.Write(quoted)
	case *ast.IntValue:
		sb.WriteString(strconv.FormatInt(int64(v.Value), 10))
	case *ast.FloatValue:
		sb.WriteString(strconv.FormatFloat(float64(v.Value), 'g', -1, 64))
	case *ast.BooleanValue:
		sb.WriteString(strconv.FormatBool(v.Value))
	case *ast.Variable:
		sb.WriteString("$")
		sb.WriteString(v.Name)
	case *ast.ListValue:
		sb.WriteString("[")
		for i, item := range v.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, item)
		}
		sb.WriteString("]")
	case *ast.ObjectValue:
		sb.WriteString("{")
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name.String())
			sb.WriteString(": ")
			writeValue(sb, f.Value)
		}
		sb.WriteString("}")
	case *ast.EnumValue:
		sb.WriteString(v.Value)
	default:
		sb.WriteString("null")
	}
}

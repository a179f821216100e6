package executor

import (
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/spacegraph/federation/planner"
)

// prune shapes value after the client's selections, dropping the key fields
// and __typename added for entity resolution. A selected field missing from
// the data is returned as null.
func prune(value any, selections []ast.Selection) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(selections))
		for _, sel := range selections {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}

			key := planner.ResponseKey(field)
			fieldValue, exists := v[key]
			if !exists {
				if _, seen := result[key]; !seen {
					result[key] = nil
				}
				continue
			}

			if len(field.SelectionSet) == 0 {
				result[key] = fieldValue
				continue
			}

			pruned := prune(fieldValue, field.SelectionSet)
			if existing, ok := result[key]; ok {
				result[key] = mergePruned(existing, pruned)
				continue
			}
			result[key] = pruned
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = prune(item, selections)
		}
		return result

	default:
		return v
	}
}

// mergePruned combines two shapes of the same value selected twice under one
// response key.
func mergePruned(a, b any) any {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return b
		}
		for k, v := range bv {
			if existing, ok := av[k]; ok {
				av[k] = mergePruned(existing, v)
			} else {
				av[k] = v
			}
		}
		return av
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return b
		}
		for i := range av {
			av[i] = mergePruned(av[i], bv[i])
		}
		return av
	case nil:
		return b
	default:
		if b == nil {
			return a
		}
		return b
	}
}

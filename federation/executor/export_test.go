package executor

import "github.com/n9te9/graphql-parser/ast"

// PruneForTest exports prune for white-box testing.
func PruneForTest(value any, selections []ast.Selection) any {
	return prune(value, selections)
}

// DeepMergeForTest exports deepMerge for white-box testing.
func DeepMergeForTest(dst, src map[string]any) {
	deepMerge(dst, src)
}

package executor_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/spacegraph/federation/executor"
)

func TestPrune(t *testing.T) {
	sg := newSuperGraph(t, "http://astronauts", "http://missions")
	plan := newPlan(t, sg, `{
		astronaut(id: "1") { name }
		astronaut(id: "1") { missions { designation } }
		other: astronauts { id }
	}`)

	data := map[string]any{
		"astronaut": map[string]any{
			"__typename": "Astronaut",
			"id":         "1",
			"name":       "Neil Armstrong",
			"missions":   []any{map[string]any{"designation": "Apollo 11", "id": "2"}},
		},
	}

	got := executor.PruneForTest(data, plan.Selections)
	want := map[string]any{
		"astronaut": map[string]any{
			"name":     "Neil Armstrong",
			"missions": []any{map[string]any{"designation": "Apollo 11"}},
		},
		"other": nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prune mismatch (-want +got):\n%s", diff)
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"mission": map[string]any{
			"designation": "Apollo 13",
			"crew":        []any{map[string]any{"id": "4"}, nil},
		},
	}
	src := map[string]any{
		"mission": map[string]any{
			"crew": []any{map[string]any{"name": "Jim Lovell"}, map[string]any{"id": "9"}},
		},
		"extra": true,
	}

	executor.DeepMergeForTest(dst, src)

	want := map[string]any{
		"mission": map[string]any{
			"designation": "Apollo 13",
			"crew":        []any{map[string]any{"id": "4", "name": "Jim Lovell"}, map[string]any{"id": "9"}},
		},
		"extra": true,
	}
	if diff := cmp.Diff(want, dst); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

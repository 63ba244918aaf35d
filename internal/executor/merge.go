package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/typeflow/typeflow/internal/workflow"
)

// mergeInputs implements merge-node modes. inputsByOrder is the set
// of incoming item lists already sorted into deterministic source order
// (by executionOrder, then sourceNodeId) — the same rule used for regular
// fan-in, reused here because merge semantics need per-input boundaries
// rather than a flat concatenation.
func mergeInputs(node workflow.Node, inputsByOrder [][]workflow.Item) ([]workflow.Item, error) {
	var cfg workflow.MergeConfig
	if len(node.Config) > 0 {
		if err := json.Unmarshal(node.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid merge-node config: %w", err)
		}
	}
	if cfg.Mode == "" {
		cfg.Mode = workflow.MergeAppend
	}

	switch cfg.Mode {
	case workflow.MergeAppend:
		var out []workflow.Item
		for _, in := range inputsByOrder {
			out = append(out, in...)
		}
		return out, nil

	case workflow.MergeByPosition:
		return mergeByPosition(inputsByOrder), nil

	case workflow.MergeByKey:
		return mergeByKey(inputsByOrder, cfg.KeyPath), nil

	case workflow.MergeMultiplex:
		return multiplex(inputsByOrder), nil

	case workflow.MergeChooseBranch:
		for _, in := range inputsByOrder {
			if len(in) > 0 {
				return in, nil
			}
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown merge mode %q", cfg.Mode)
	}
}

// mergeByPosition zips inputs by index. Per Open Question resolution,
// a missing/empty input is treated as exhausted immediately, so the merged
// row at an index carries only the fields of the sides still present.
func mergeByPosition(inputsByOrder [][]workflow.Item) []workflow.Item {
	maxLen := 0
	for _, in := range inputsByOrder {
		if len(in) > maxLen {
			maxLen = len(in)
		}
	}
	out := make([]workflow.Item, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		merged := map[string]any{}
		any := false
		for _, in := range inputsByOrder {
			if i < len(in) {
				for k, v := range in[i].JSON {
					merged[k] = v
				}
				any = true
			}
		}
		if any {
			out = append(out, workflow.NewJSONItem(merged))
		}
	}
	return out
}

// mergeByKey performs an outer join on a named dot-path field across all
// inputs. An empty/missing input contributes no rows (Open Question).
func mergeByKey(inputsByOrder [][]workflow.Item, keyPath string) []workflow.Item {
	type bucket struct {
		key any
		items []map[string]any
	}
	order := []any{}
	buckets := map[any]*bucket{}

	for _, in := range inputsByOrder {
		for _, item := range in {
			k := dotPath(item.JSON, keyPath)
			b, ok := buckets[k]
			if !ok {
				b = &bucket{key: k}
				buckets[k] = b
				order = append(order, k)
			}
			b.items = append(b.items, item.JSON)
		}
	}

	var out []workflow.Item
	for _, k := range order {
		b := buckets[k]
		merged := map[string]any{}
		for _, j := range b.items {
			for field, v := range j {
				merged[field] = v
			}
		}
		out = append(out, workflow.NewJSONItem(merged))
	}
	return out
}

// multiplex computes the Cartesian product across all non-empty inputs. An
// empty factor collapses the product to empty (Open Question).
func multiplex(inputsByOrder [][]workflow.Item) []workflow.Item {
	var nonEmpty [][]workflow.Item
	for _, in := range inputsByOrder {
		if len(in) == 0 {
			return nil
		}
		nonEmpty = append(nonEmpty, in)
	}
	if len(nonEmpty) == 0 {
		return nil
	}

	combos := []map[string]any{{}}
	for _, in := range nonEmpty {
		var next []map[string]any
		for _, combo := range combos {
			for _, item := range in {
				merged := map[string]any{}
				for k, v := range combo {
					merged[k] = v
				}
				for k, v := range item.JSON {
					merged[k] = v
				}
				next = append(next, merged)
			}
		}
		combos = next
	}

	out := make([]workflow.Item, 0, len(combos))
	for _, c := range combos {
		out = append(out, workflow.NewJSONItem(c))
	}
	return out
}

func dotPath(m map[string]any, path string) any {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = asMap[p]
	}
	return cur
}

// removeDuplicates implements the RemoveDuplicates node: dedupe items using
// a dot-path field, or whole-object equality when field is empty.
func removeDuplicates(node workflow.Node, items []workflow.Item) ([]workflow.Item, error) {
	var cfg workflow.RemoveDuplicatesConfig
	if len(node.Config) > 0 {
		if err := json.Unmarshal(node.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid removeDuplicates config: %w", err)
		}
	}

	seen := map[string]bool{}
	var out []workflow.Item
	for _, item := range items {
		var key string
		if cfg.Field != "" {
			v := dotPath(item.JSON, cfg.Field)
			b, _ := json.Marshal(v)
			key = string(b)
		} else {
			b, _ := json.Marshal(item.JSON)
			key = string(b)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out, nil
}

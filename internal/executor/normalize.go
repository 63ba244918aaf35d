package executor

import "github.com/typeflow/typeflow/internal/workflow"

// normalizeOutput implements output normalization for whatever a
// code/utilities node handed back as its raw return value:
// - undefined/nil -> passthrough of the node's own input items
// - array of {json: ...} -> used as-is (already item-shaped)
// - plain array -> each element wrapped as one item's json
// - plain object -> a single item
// - primitive -> a single item {value: primitive}
func normalizeOutput(raw any, passthrough []workflow.Item) []workflow.Item {
	if raw == nil {
		return passthrough
	}

	switch v := raw.(type) {
	case []any:
		if len(v) == 0 {
			return nil
		}
		if allItemShaped(v) {
			out := make([]workflow.Item, 0, len(v))
			for _, el := range v {
				out = append(out, itemFromShaped(el.(map[string]any)))
			}
			return out
		}
		out := make([]workflow.Item, 0, len(v))
		for _, el := range v {
			out = append(out, wrapElement(el))
		}
		return out

	case map[string]any:
		return []workflow.Item{workflow.NewJSONItem(v)}

	default:
		return []workflow.Item{workflow.NewJSONItem(map[string]any{"value": v})}
	}
}

func allItemShaped(v []any) bool {
	for _, el := range v {
		m, ok := el.(map[string]any)
		if !ok {
			return false
		}
		if _, has := m["json"]; !has {
			return false
		}
	}
	return true
}

func itemFromShaped(m map[string]any) workflow.Item {
	item := workflow.Item{}
	if j, ok := m["json"].(map[string]any); ok {
		item.JSON = j
	} else {
		item.JSON = map[string]any{}
	}
	return item
}

func wrapElement(el any) workflow.Item {
	if m, ok := el.(map[string]any); ok {
		return workflow.NewJSONItem(m)
	}
	return workflow.NewJSONItem(map[string]any{"value": el})
}

package javascript

import (
	"encoding/json"
	"fmt"
)

// ValueSanitizer ensures values crossing the Go/JavaScript boundary are
// safe for JSON serialization: it walks a value, recursing through maps
// and slices, and round-trips anything else through JSON so only
// JSON-representable types ever reach the sandbox or a node's output.
type ValueSanitizer struct {
	maxDepth int
}

// NewValueSanitizer creates a new value sanitizer.
func NewValueSanitizer() *ValueSanitizer {
	return &ValueSanitizer{
		maxDepth: 100, // Prevent circular reference infinite recursion
	}
}

// Sanitize converts a value to a safe, serializable form.
func (vs *ValueSanitizer) Sanitize(value any) any {
	return vs.sanitizeWithDepth(value, 0)
}

func (vs *ValueSanitizer) sanitizeWithDepth(value any, depth int) any {
	if depth > vs.maxDepth {
		return nil // Prevent infinite recursion
	}

	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = vs.sanitizeWithDepth(val, depth+1)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = vs.sanitizeWithDepth(val, depth+1)
		}
		return result

	case []map[string]any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = vs.sanitizeWithDepth(val, depth+1)
		}
		return result

	default:
		// Try to convert via JSON round-trip for complex types
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		var result any
		if err := json.Unmarshal(jsonBytes, &result); err != nil {
			return fmt.Sprintf("%v", v)
		}
		return vs.sanitizeWithDepth(result, depth+1)
	}
}

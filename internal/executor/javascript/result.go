package javascript

import (
	"encoding/json"

	"github.com/dop251/goja"
)

// ResultExtractor converts a script's goja return value into a plain Go
// value ready for output-normalization step.
type ResultExtractor struct {
	sanitizer *ValueSanitizer
}

// NewResultExtractor creates a new result extractor.
func NewResultExtractor() *ResultExtractor {
	return &ResultExtractor{
		sanitizer: NewValueSanitizer(),
	}
}

// ExtractResult converts a Goja value to a Go value.
func (re *ResultExtractor) ExtractResult(val goja.Value) (any, error) {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}

	exported := val.Export()
	return re.sanitizer.Sanitize(exported), nil
}

// ExtractJSON converts a Goja value to JSON bytes.
func (re *ResultExtractor) ExtractJSON(val goja.Value) ([]byte, error) {
	result, err := re.ExtractResult(val)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

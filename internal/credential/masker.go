package credential

import (
	"encoding/json"
	"strings"
)

// DefaultMask replaces a resolved credential value wherever it surfaces in
// a node's output or execution log, so a workflow's stored Result/Error
// never leaks the plaintext of a $credentials.<name> reference.
const DefaultMask = "***CREDENTIAL***"

// Masker scrubs decrypted credential values out of node output before it is
// persisted to NodeResult/Execution.Result or returned to the API. Every
// Handle built for a code node's $credentials access carries the decrypted
// values that fed it; those values are the secrets passed to MaskJSON et al.
type Masker struct {
	mask string
}

// NewMasker creates a new masker with default mask string
func NewMasker() *Masker {
	return &Masker{
		mask: DefaultMask,
	}
}

// NewMaskerWithMask creates a new masker with custom mask string
func NewMaskerWithMask(mask string) *Masker {
	return &Masker{
		mask: mask,
	}
}

// MaskString replaces every occurrence of a resolved credential value in
// input with the mask string.
func (m *Masker) MaskString(input string, secrets []string) string {
	if input == "" || len(secrets) == 0 {
		return input
	}

	result := input
	for _, secret := range secrets {
		if secret != "" {
			result = strings.ReplaceAll(result, secret, m.mask)
		}
	}

	return result
}

// MaskJSON walks a decoded node output (the shape a $input/$json-returning
// code node produces) and masks any credential value found at any depth,
// including inside arrays and nested objects a script builds at runtime.
func (m *Masker) MaskJSON(data map[string]interface{}, secrets []string) map[string]interface{} {
	if len(secrets) == 0 {
		return data
	}

	result := make(map[string]interface{})
	for key, value := range data {
		result[key] = m.maskValue(value, secrets)
	}

	return result
}

// maskValue recursively masks a value
func (m *Masker) maskValue(value interface{}, secrets []string) interface{} {
	switch v := value.(type) {
	case string:
		return m.MaskString(v, secrets)
	case map[string]interface{}:
		return m.MaskJSON(v, secrets)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = m.maskValue(item, secrets)
		}
		return result
	default:
		// Preserve non-string types as-is
		return v
	}
}

// MaskRawJSON masks credential values inside a node's raw JSON output
// before it is stored on Execution.Result or NodeResult.Output.
func (m *Masker) MaskRawJSON(data json.RawMessage, secrets []string) (json.RawMessage, error) {
	if len(data) == 0 || len(secrets) == 0 {
		return data, nil
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	masked := m.maskValue(parsed, secrets)

	result, err := json.Marshal(masked)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExtractSecrets recursively collects every string value out of a decoded
// credential handle's field set, giving callers the exact secret list to
// pass into MaskJSON/MaskString for that handle.
func (m *Masker) ExtractSecrets(value interface{}) []string {
	var secrets []string

	switch v := value.(type) {
	case string:
		if v != "" {
			secrets = append(secrets, v)
		}
	case map[string]interface{}:
		for _, val := range v {
			secrets = append(secrets, m.ExtractSecrets(val)...)
		}
	case []interface{}:
		for _, item := range v {
			secrets = append(secrets, m.ExtractSecrets(item)...)
		}
	}

	return secrets
}

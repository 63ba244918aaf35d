package executor

import (
	"encoding/json"
	"regexp"

	"github.com/typeflow/typeflow/internal/workflow"
)

var credentialRefPattern = regexp.MustCompile(`\$credentials\.([a-zA-Z0-9_]+)`)

// credentialReferences scans a code/utilities node's script for
// $credentials.<name> references, so the executor only resolves and
// injects the handles a given script actually uses.
func credentialReferences(config json.RawMessage) []string {
	var cfg workflow.CodeConfig
	if len(config) == 0 {
		return nil
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil
	}
	matches := credentialRefPattern.FindAllStringSubmatch(cfg.Code, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

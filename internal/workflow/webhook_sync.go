package workflow

import "encoding/json"

// WebhookInfo describes one webhook trigger configured on a workflow, as
// surfaced to API consumers alongside the workflow definition.
type WebhookInfo struct {
	ID         string `json:"id"`
	NodeID     string `json:"nodeId"`
	WebhookURL string `json:"webhookUrl"`
	AuthType   string `json:"authType"`
	Secret     string `json:"secret,omitempty"`
}

// WebhookNodeConfig is the subset of a NodeKindWebhook node's config the
// webhook package needs to keep its webhooks table in sync with a
// workflow's definition.
type WebhookNodeConfig struct {
	NodeID   string
	AuthType string
}

type webhookNodeConfigJSON struct {
	AuthType string `json:"authType"`
}

// WebhookNodeConfigs extracts the webhook trigger nodes from a definition.
func (d *Definition) WebhookNodeConfigs() []WebhookNodeConfig {
	var configs []WebhookNodeConfig
	for _, n := range d.Nodes {
		if n.Kind != NodeKindWebhook {
			continue
		}
		cfg := WebhookNodeConfig{NodeID: n.ID}
		if len(n.Config) > 0 {
			var parsed webhookNodeConfigJSON
			if err := json.Unmarshal(n.Config, &parsed); err == nil {
				cfg.AuthType = parsed.AuthType
			}
		}
		configs = append(configs, cfg)
	}
	return configs
}

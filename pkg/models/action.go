package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Post-sync action types.
const (
	ActionRefresh = "refresh"
	ActionWebhook = "webhook"
)

// RefreshConfig triggers a media-server library rescan.
type RefreshConfig struct {
	URL     string `json:"url"`
	Token   string `json:"token"`
	Section string `json:"section"`
}

// WebhookConfig calls an arbitrary HTTP endpoint.
type WebhookConfig struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// PostSyncAction is a notification fired after a fully successful session.
// Exactly one of Refresh or Webhook is set, matching Type.
type PostSyncAction struct {
	ID        int64
	Name      string
	Type      string
	Enabled   bool
	Refresh   *RefreshConfig
	Webhook   *WebhookConfig
	CreatedAt time.Time
}

// Validate checks the action's type and its type-specific configuration.
// Called at create/update time so misconfiguration surfaces to the caller
// instead of failing silently at dispatch time.
func (a *PostSyncAction) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("action name is required")
	}
	switch a.Type {
	case ActionRefresh:
		if a.Refresh == nil || a.Refresh.URL == "" {
			return fmt.Errorf("refresh action requires a url")
		}
		if a.Refresh.Token == "" {
			return fmt.Errorf("refresh action requires a token")
		}
		if a.Refresh.Section == "" {
			a.Refresh.Section = "1"
		}
		a.Webhook = nil
	case ActionWebhook:
		if a.Webhook == nil || a.Webhook.URL == "" {
			return fmt.Errorf("webhook action requires a url")
		}
		switch m := strings.ToUpper(a.Webhook.Method); m {
		case "":
			a.Webhook.Method = "POST"
		case "GET", "POST", "PUT":
			a.Webhook.Method = m
		default:
			return fmt.Errorf("unsupported webhook method %q", a.Webhook.Method)
		}
		a.Refresh = nil
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// EncodeConfig serializes the type-specific configuration for storage.
func (a *PostSyncAction) EncodeConfig() ([]byte, error) {
	switch a.Type {
	case ActionRefresh:
		return json.Marshal(a.Refresh)
	case ActionWebhook:
		return json.Marshal(a.Webhook)
	}
	return nil, fmt.Errorf("unknown action type %q", a.Type)
}

// DecodeConfig populates the type-specific configuration from stored JSON.
func (a *PostSyncAction) DecodeConfig(data []byte) error {
	switch a.Type {
	case ActionRefresh:
		a.Refresh = &RefreshConfig{}
		return json.Unmarshal(data, a.Refresh)
	case ActionWebhook:
		a.Webhook = &WebhookConfig{}
		return json.Unmarshal(data, a.Webhook)
	}
	return fmt.Errorf("unknown action type %q", a.Type)
}

type actionJSON struct {
	ID        int64           `json:"id,omitempty"`
	Name      string          `json:"name"`
	Type      string          `json:"action_type"`
	Enabled   bool            `json:"enabled"`
	Config    json.RawMessage `json:"config"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
}

// MarshalJSON renders the action with its config keyed under "config",
// keeping the wire shape independent of the internal tagged union.
func (a PostSyncAction) MarshalJSON() ([]byte, error) {
	cfg, err := a.EncodeConfig()
	if err != nil {
		return nil, err
	}
	out := actionJSON{
		ID:      a.ID,
		Name:    a.Name,
		Type:    a.Type,
		Enabled: a.Enabled,
		Config:  cfg,
	}
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt
		out.CreatedAt = &t
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire shape into the tagged union.
func (a *PostSyncAction) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.ID = in.ID
	a.Name = in.Name
	a.Type = in.Type
	a.Enabled = in.Enabled
	if in.CreatedAt != nil {
		a.CreatedAt = *in.CreatedAt
	}
	if len(in.Config) == 0 {
		return fmt.Errorf("action config is required")
	}
	return a.DecodeConfig(in.Config)
}

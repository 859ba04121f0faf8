// Package actions fires post-sync notifications: media-server library
// refreshes and generic webhooks. Action failures are secondary events; they
// are logged and never affect the session that triggered them.
package actions

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rwidmer/nasync/pkg/models"
)

// Dispatcher invokes enabled actions in stored order.
type Dispatcher struct {
	client *http.Client
}

// New returns a Dispatcher with a bounded HTTP timeout.
func New() *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch runs every enabled action once. One action failing never prevents
// the remaining actions from running.
func (d *Dispatcher) Dispatch(ctx context.Context, acts []models.PostSyncAction) {
	for _, a := range acts {
		if !a.Enabled {
			continue
		}
		var err error
		switch a.Type {
		case models.ActionRefresh:
			err = d.refresh(ctx, a.Refresh)
		case models.ActionWebhook:
			err = d.webhook(ctx, a.Webhook)
		default:
			err = fmt.Errorf("unknown action type %q", a.Type)
		}
		if err != nil {
			log.WithField("action", a.Name).WithError(err).Warn("post-sync action failed")
		} else {
			log.WithField("action", a.Name).Info("post-sync action completed")
		}
	}
}

// refresh triggers a media-server library rescan for the configured section.
func (d *Dispatcher) refresh(ctx context.Context, cfg *models.RefreshConfig) error {
	endpoint := fmt.Sprintf("%s/library/sections/%s/refresh?X-Plex-Token=%s",
		strings.TrimRight(cfg.URL, "/"), cfg.Section, url.QueryEscape(cfg.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh returned status %d", resp.StatusCode)
	}
	return nil
}

// webhook calls the configured URL with the configured method.
func (d *Dispatcher) webhook(ctx context.Context, cfg *models.WebhookConfig) error {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

package actions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rwidmer/nasync/pkg/models"
)

type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func (r *recorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.requests = append(r.requests, req.Clone(context.Background()))
		status := r.status
		r.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func TestDispatchRefresh(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d := New()
	d.Dispatch(context.Background(), []models.PostSyncAction{{
		Name:    "plex",
		Type:    models.ActionRefresh,
		Enabled: true,
		Refresh: &models.RefreshConfig{URL: srv.URL, Token: "tok", Section: "2"},
	}})

	assert.Equal(t, 1, rec.count())
	req := rec.requests[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/library/sections/2/refresh", req.URL.Path)
	assert.Equal(t, "tok", req.URL.Query().Get("X-Plex-Token"))
}

func TestDispatchWebhookMethod(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d := New()
	d.Dispatch(context.Background(), []models.PostSyncAction{{
		Name:    "hook",
		Type:    models.ActionWebhook,
		Enabled: true,
		Webhook: &models.WebhookConfig{URL: srv.URL, Method: "PUT"},
	}})

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, http.MethodPut, rec.requests[0].Method)
}

func TestDispatchSkipsDisabledActions(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d := New()
	d.Dispatch(context.Background(), []models.PostSyncAction{{
		Name:    "hook",
		Type:    models.ActionWebhook,
		Enabled: false,
		Webhook: &models.WebhookConfig{URL: srv.URL, Method: "POST"},
	}})

	assert.Equal(t, 0, rec.count())
}

func TestDispatchIsolatesFailures(t *testing.T) {
	failing := &recorder{status: http.StatusInternalServerError}
	failSrv := httptest.NewServer(failing.handler())
	defer failSrv.Close()

	ok := &recorder{}
	okSrv := httptest.NewServer(ok.handler())
	defer okSrv.Close()

	d := New()
	d.Dispatch(context.Background(), []models.PostSyncAction{
		{
			Name:    "broken",
			Type:    models.ActionWebhook,
			Enabled: true,
			Webhook: &models.WebhookConfig{URL: failSrv.URL, Method: "POST"},
		},
		{
			Name:    "healthy",
			Type:    models.ActionWebhook,
			Enabled: true,
			Webhook: &models.WebhookConfig{URL: okSrv.URL, Method: "POST"},
		},
	})

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count(), "a failing action must not block later actions")
}

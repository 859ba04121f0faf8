// Package engine owns the sync session state machine: it decides whether a
// session may start, runs each mapping's transfer strictly in sequence,
// records every outcome, and gates post-sync actions on a fully successful
// session.
package engine

import (
	"context"
	"errors"
	"os/exec"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/rwidmer/nasync/internal/actions"
	"github.com/rwidmer/nasync/internal/probe"
	"github.com/rwidmer/nasync/internal/transfer"
	"github.com/rwidmer/nasync/pkg/models"
)

// ErrNasNotConfigured is returned when a session is requested before any NAS
// connection settings exist. This is a caller error, not a session outcome.
var ErrNasNotConfigured = errors.New("NAS is not configured")

// ErrMappingNotFound is returned by RunMapping for an unknown mapping id.
var ErrMappingNotFound = errors.New("mapping not found")

// Store is the persistence surface the engine needs. *db.DB satisfies it.
type Store interface {
	NasConfig() (*models.NasConfig, error)
	Mappings() ([]models.FolderMapping, error)
	Mapping(id int64) (*models.FolderMapping, error)
	CreateSyncRun(run *models.SyncRun) error
	UpdateMappingSyncStatus(id int64, status, message string) error
	Actions() ([]models.PostSyncAction, error)
}

// Prober reports network-level reachability of the NAS.
type Prober interface {
	IsReachable(ctx context.Context, hostname string) bool
}

// Runner performs one transfer attempt for one mapping.
type Runner interface {
	Run(ctx context.Context, mapping *models.FolderMapping, cfg *models.NasConfig) models.SyncRun
}

// Dispatcher fires post-sync actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, acts []models.PostSyncAction)
}

// Engine sequences sync sessions. At most one session runs at a time,
// regardless of whether it was triggered by the scheduler, a sync-all
// request, or a single-mapping request.
type Engine struct {
	store      Store
	prober     Prober
	runner     Runner
	dispatcher Dispatcher

	// running is the session guard. Acquired with a non-blocking
	// compare-and-swap; a caller that loses gets a skipped report, never a
	// queue slot.
	running atomic.Bool
}

// New assembles an engine over the given collaborators.
func New(store Store, prober Prober, runner Runner, dispatcher Dispatcher) *Engine {
	return &Engine{
		store:      store,
		prober:     prober,
		runner:     runner,
		dispatcher: dispatcher,
	}
}

// NewDefault wires an engine with the real prober, rsync runner and HTTP
// dispatcher.
func NewDefault(store Store) *Engine {
	return New(store,
		probe.New(exec.CommandContext),
		transfer.New(exec.CommandContext),
		actions.New(),
	)
}

// InProgress reports whether a session is currently running. Safe to call
// concurrently with a running session.
func (e *Engine) InProgress() bool {
	return e.running.Load()
}

// RunAll runs one session over every enabled mapping, in id order. A skipped
// report (never an error) is returned when a session is already running, the
// NAS is offline, or there is nothing to sync.
func (e *Engine) RunAll(ctx context.Context) (*models.SessionReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return &models.SessionReport{Status: models.SessionSkipped, Reason: models.ReasonInProgress}, nil
	}
	defer e.running.Store(false)

	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}

	if !e.prober.IsReachable(ctx, cfg.Hostname) {
		log.WithField("hostname", cfg.Hostname).Info("NAS offline, skipping sync")
		return &models.SessionReport{Status: models.SessionSkipped, Reason: models.ReasonNasOffline}, nil
	}

	all, err := e.store.Mappings()
	if err != nil {
		return nil, err
	}
	var enabled []models.FolderMapping
	for _, m := range all {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		log.Info("no enabled mappings to sync")
		return &models.SessionReport{Status: models.SessionSkipped, Reason: models.ReasonNoMappings}, nil
	}

	report := e.runSession(ctx, enabled, cfg)
	log.WithFields(log.Fields{
		"succeeded": report.SuccessCount(),
		"total":     len(report.Mappings),
	}).Info("sync session completed")
	return report, nil
}

// RunMapping runs one session restricted to a single mapping. The mapping
// does not have to be enabled. The same guard and gates apply as for RunAll,
// but the report's status mirrors the one transfer: completed on success,
// error on failure.
func (e *Engine) RunMapping(ctx context.Context, id int64) (*models.SessionReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return &models.SessionReport{Status: models.SessionSkipped, Reason: models.ReasonInProgress}, nil
	}
	defer e.running.Store(false)

	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}

	mapping, err := e.store.Mapping(id)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, ErrMappingNotFound
	}

	if !e.prober.IsReachable(ctx, cfg.Hostname) {
		return &models.SessionReport{Status: models.SessionSkipped, Reason: models.ReasonNasOffline}, nil
	}

	report := e.runSession(ctx, []models.FolderMapping{*mapping}, cfg)
	if !report.Mappings[0].Success {
		report.Status = models.SessionError
	}
	return report, nil
}

func (e *Engine) loadConfig() (*models.NasConfig, error) {
	cfg, err := e.store.NasConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Hostname == "" {
		return nil, ErrNasNotConfigured
	}
	return cfg, nil
}

// runSession attempts every mapping in order, one at a time. Each mapping
// works from the record captured here, so a concurrent edit never tears a
// transfer already in flight. A failed mapping is recorded and the session
// moves on; the session itself always completes.
func (e *Engine) runSession(ctx context.Context, mappings []models.FolderMapping, cfg *models.NasConfig) *models.SessionReport {
	report := &models.SessionReport{Status: models.SessionCompleted}

	for i := range mappings {
		m := mappings[i]
		run := e.runner.Run(ctx, &m, cfg)

		if err := e.store.CreateSyncRun(&run); err != nil {
			log.WithField("mapping", m.Name).WithError(err).Error("failed to record sync run")
		}
		if err := e.store.UpdateMappingSyncStatus(m.ID, run.Status, run.Message); err != nil {
			log.WithField("mapping", m.Name).WithError(err).Error("failed to update mapping status")
		}

		report.Mappings = append(report.Mappings, models.MappingResult{
			ID:      m.ID,
			Name:    m.Name,
			Success: run.Status == models.StatusSuccess,
			Message: run.Message,
		})
	}

	// Notifications only fire when the whole session succeeded; a partial
	// failure completes the session but announces nothing downstream.
	if report.Succeeded() {
		acts, err := e.store.Actions()
		if err != nil {
			log.WithError(err).Error("failed to load post-sync actions")
		} else if len(acts) > 0 {
			e.dispatcher.Dispatch(ctx, acts)
		}
	}

	return report
}

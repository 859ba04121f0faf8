// Package api exposes the engine and its record store over HTTP. Handlers
// are thin: decode, delegate, encode. All state decisions stay in the engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/rwidmer/nasync/internal/db"
	"github.com/rwidmer/nasync/internal/engine"
	"github.com/rwidmer/nasync/internal/probe"
	"github.com/rwidmer/nasync/internal/scheduler"
	"github.com/rwidmer/nasync/pkg/models"
)

// Server bundles the collaborators the HTTP layer fronts.
type Server struct {
	store     *db.DB
	engine    *engine.Engine
	prober    *probe.Prober
	scheduler *scheduler.Scheduler
}

// New creates the HTTP server facade.
func New(store *db.DB, eng *engine.Engine, prober *probe.Prober, sched *scheduler.Scheduler) *Server {
	return &Server{store: store, engine: eng, prober: prober, scheduler: sched}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/nas-config", s.getNasConfig).Methods(http.MethodGet)
	api.HandleFunc("/nas-config", s.saveNasConfig).Methods(http.MethodPost)
	api.HandleFunc("/nas-status", s.nasStatus).Methods(http.MethodGet)
	api.HandleFunc("/nas-test", s.nasTest).Methods(http.MethodPost)

	api.HandleFunc("/mappings", s.listMappings).Methods(http.MethodGet)
	api.HandleFunc("/mappings", s.createMapping).Methods(http.MethodPost)
	api.HandleFunc("/mappings/{id:[0-9]+}", s.getMapping).Methods(http.MethodGet)
	api.HandleFunc("/mappings/{id:[0-9]+}", s.updateMapping).Methods(http.MethodPut)
	api.HandleFunc("/mappings/{id:[0-9]+}", s.deleteMapping).Methods(http.MethodDelete)

	api.HandleFunc("/sync/status", s.syncStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/run", s.runSyncAll).Methods(http.MethodPost)
	api.HandleFunc("/sync/run/{id:[0-9]+}", s.runSyncMapping).Methods(http.MethodPost)

	api.HandleFunc("/logs", s.listLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs/mapping/{id:[0-9]+}", s.listMappingLogs).Methods(http.MethodGet)

	api.HandleFunc("/scheduler", s.getScheduler).Methods(http.MethodGet)
	api.HandleFunc("/scheduler", s.saveScheduler).Methods(http.MethodPost)

	api.HandleFunc("/actions", s.listActions).Methods(http.MethodGet)
	api.HandleFunc("/actions", s.createAction).Methods(http.MethodPost)
	api.HandleFunc("/actions/{id:[0-9]+}", s.updateAction).Methods(http.MethodPut)
	api.HandleFunc("/actions/{id:[0-9]+}", s.deleteAction).Methods(http.MethodDelete)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) getNasConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.NasConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
}

func (s *Server) saveNasConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.NasConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if cfg.Hostname == "" || cfg.SSHUser == "" {
		writeError(w, http.StatusBadRequest, errors.New("hostname and ssh_user are required"))
		return
	}
	if cfg.SSHKeyPath == "" {
		cfg.SSHKeyPath = "/config/id_rsa"
	}
	if cfg.SSHPort == 0 {
		cfg.SSHPort = 22
	}
	if err := s.store.SaveNasConfig(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) nasStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.NasConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"configured": false, "online": false})
		return
	}
	online := s.prober.IsReachable(r.Context(), cfg.Hostname)
	writeJSON(w, http.StatusOK, map[string]any{
		"configured": true,
		"online":     online,
		"hostname":   cfg.Hostname,
	})
}

func (s *Server) nasTest(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.NasConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "NAS not configured"})
		return
	}
	ok, message := s.prober.TestSSH(r.Context(), cfg)
	writeJSON(w, http.StatusOK, map[string]any{"success": ok, "message": message})
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.Mappings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if mappings == nil {
		mappings = []models.FolderMapping{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

func (s *Server) getMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Mapping(pathID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, engine.ErrMappingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping": m})
}

type mappingRequest struct {
	Name            string `json:"name"`
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
	Enabled         *bool  `json:"enabled"`
	DeleteSource    bool   `json:"delete_source"`
}

func (req *mappingRequest) toModel() *models.FolderMapping {
	m := &models.FolderMapping{
		Name:            req.Name,
		SourcePath:      req.SourcePath,
		DestinationPath: req.DestinationPath,
		Enabled:         true,
		DeleteSource:    req.DeleteSource,
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}
	return m
}

func (s *Server) createMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m := req.toModel()
	if m.SourcePath == "" || m.DestinationPath == "" {
		writeError(w, http.StatusBadRequest, errors.New("source_path and destination_path are required"))
		return
	}
	id, err := s.store.CreateMapping(m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": id})
}

func (s *Server) updateMapping(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	existing, err := s.store.Mapping(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, engine.ErrMappingNotFound)
		return
	}
	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m := req.toModel()
	m.ID = id
	if m.SourcePath == "" || m.DestinationPath == "" {
		writeError(w, http.StatusBadRequest, errors.New("source_path and destination_path are required"))
		return
	}
	if err := s.store.UpdateMapping(m); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteMapping(pathID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	enabled, nextRun := s.scheduler.Status()
	var next *string
	if nextRun != nil {
		formatted := nextRun.Format(time.RFC3339)
		next = &formatted
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"in_progress": s.engine.InProgress(),
		"scheduler": map[string]any{
			"enabled":  enabled,
			"next_run": next,
		},
	})
}

func (s *Server) runSyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunAll(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrNasNotConfigured) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) runSyncMapping(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunMapping(r.Context(), pathID(r))
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrMappingNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, engine.ErrNasNotConfigured):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.RecentSyncRuns(queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": runs})
}

func (s *Server) listMappingLogs(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.MappingSyncRuns(pathID(r), queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": runs})
}

func (s *Server) getScheduler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.SchedulerConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	enabled, nextRun := s.scheduler.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"config": cfg,
		"status": map[string]any{"enabled": enabled, "next_run": nextRun},
	})
}

func (s *Server) saveScheduler(w http.ResponseWriter, r *http.Request) {
	var cfg models.SchedulerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SaveSchedulerConfig(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Reconfigure the live scheduler so the change takes effect without a
	// restart.
	s.scheduler.Apply(&cfg)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	acts, err := s.store.Actions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if acts == nil {
		acts = []models.PostSyncAction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": acts})
}

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var a models.PostSyncAction
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.store.CreateAction(&a)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": id})
}

func (s *Server) updateAction(w http.ResponseWriter, r *http.Request) {
	var a models.PostSyncAction
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.ID = pathID(r)
	if err := s.store.UpdateAction(&a); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deleteAction(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAction(pathID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

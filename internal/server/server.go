// Package server exposes the HTTP API: display and group management,
// manual power control, schedule CRUD, the activity log and the energy
// savings report.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"ldpm/internal/bravia"
	"ldpm/internal/energy"
	"ldpm/internal/power"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8090"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

// reloader is the slice of the schedule registry the API needs: pick up
// schedule mutations without a restart.
type reloader interface {
	Reload(ctx context.Context) error
}

type Server struct {
	cfg      Config
	st       *store.Store
	ctrl     bravia.Controller
	applier  *power.Applier
	registry reloader
	energy   energy.Config
	log      logx.Logger

	mu  sync.Mutex
	srv *http.Server
}

func New(cfg Config, st *store.Store, ctrl bravia.Controller, applier *power.Applier, registry reloader, energyCfg energy.Config, log logx.Logger) *Server {
	return &Server{
		cfg:      cfg.withDefaults(),
		st:       st,
		ctrl:     ctrl,
		applier:  applier,
		registry: registry,
		energy:   energyCfg,
		log:      log.With(logx.String("service", "http")),
	}
}

// Router builds the full route table. Exposed so tests can drive the
// handlers through httptest without a listener.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.logMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/displays", s.handleListDisplays).Methods(http.MethodGet)
	api.HandleFunc("/displays", s.handleCreateDisplay).Methods(http.MethodPost)
	api.HandleFunc("/displays/import", s.handleImportDisplays).Methods(http.MethodPost)
	api.HandleFunc("/displays/{id}", s.handleGetDisplay).Methods(http.MethodGet)
	api.HandleFunc("/displays/{id}", s.handleUpdateDisplay).Methods(http.MethodPut)
	api.HandleFunc("/displays/{id}", s.handleDeleteDisplay).Methods(http.MethodDelete)
	api.HandleFunc("/displays/{id}/power", s.handleDisplayPower).Methods(http.MethodPost)
	api.HandleFunc("/displays/{id}/status", s.handleDisplayStatus).Methods(http.MethodGet)

	api.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}", s.handleGetGroup).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}", s.handleUpdateGroup).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}", s.handleDeleteGroup).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/displays", s.handleAddGroupDisplays).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/displays", s.handleRemoveGroupDisplays).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/power", s.handleGroupPower).Methods(http.MethodPost)

	api.HandleFunc("/schedules", s.handleListSchedules).Methods(http.MethodGet)
	api.HandleFunc("/schedules", s.handleCreateSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}", s.handleGetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", s.handleUpdateSchedule).Methods(http.MethodPut)
	api.HandleFunc("/schedules/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete)
	api.HandleFunc("/schedules/{id}/enable", s.handleEnableSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}/executions", s.handleListExecutions).Methods(http.MethodGet)

	api.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
	api.HandleFunc("/energy/savings", s.handleEnergySavings).Methods(http.MethodGet)

	return r
}

// Start begins serving in the background. Idempotent.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.srv = srv

	go func() {
		s.log.Info("http api listening", logx.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"ldpm/internal/services/scheduler"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

type targetJSON struct {
	Kind string `json:"kind"` // "display" or "group"
	ID   int64  `json:"id"`
}

type scheduleJSON struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Action    string       `json:"action"`
	CronSpec  string       `json:"cron_spec"`
	Enabled   bool         `json:"enabled"`
	Targets   []targetJSON `json:"targets"`
	CreatedAt time.Time    `json:"created_at"`
}

func toScheduleJSON(sc store.Schedule) scheduleJSON {
	targets := make([]targetJSON, 0, len(sc.Targets))
	for _, t := range sc.Targets {
		targets = append(targets, targetJSON{Kind: string(t.Kind), ID: t.RefID})
	}
	return scheduleJSON{
		ID:        sc.ID,
		Name:      sc.Name,
		Action:    sc.Action,
		CronSpec:  sc.CronSpec,
		Enabled:   sc.Enabled,
		Targets:   targets,
		CreatedAt: sc.CreatedAt,
	}
}

type scheduleInput struct {
	Name     string       `json:"name"`
	Action   string       `json:"action"`
	CronSpec string       `json:"cron_spec"`
	Enabled  *bool        `json:"enabled"`
	Targets  []targetJSON `json:"targets"`
}

func (in scheduleInput) validate() ([]store.Target, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if in.Action != "on" && in.Action != "off" {
		return nil, fmt.Errorf(`action must be "on" or "off"`)
	}
	if _, err := scheduler.ParseCron(in.CronSpec); err != nil {
		return nil, fmt.Errorf("cron_spec: %v", err)
	}
	if len(in.Targets) == 0 {
		return nil, fmt.Errorf("targets must not be empty")
	}
	targets := make([]store.Target, 0, len(in.Targets))
	for _, t := range in.Targets {
		kind := store.TargetKind(t.Kind)
		if kind != store.TargetDisplay && kind != store.TargetGroup {
			return nil, fmt.Errorf("target kind %q must be display or group", t.Kind)
		}
		if t.ID <= 0 {
			return nil, fmt.Errorf("target id must be positive")
		}
		targets = append(targets, store.Target{Kind: kind, RefID: t.ID})
	}
	return targets, nil
}

// reloadRegistry picks up schedule mutations immediately.
func (s *Server) reloadRegistry(r *http.Request) {
	if s.registry == nil {
		return
	}
	if err := s.registry.Reload(r.Context()); err != nil {
		s.log.Warn("schedule registry reload failed", logx.Err(err))
	}
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.st.ListSchedules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]scheduleJSON, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, toScheduleJSON(sc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var in scheduleInput
	if !decodeBody(w, r, &in) {
		return
	}
	targets, err := in.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc := store.Schedule{
		Name:     strings.TrimSpace(in.Name),
		Action:   in.Action,
		CronSpec: strings.TrimSpace(in.CronSpec),
		Enabled:  in.Enabled == nil || *in.Enabled,
		Targets:  targets,
	}
	if err := s.st.CreateSchedule(r.Context(), &sc); err != nil {
		writeStoreError(w, err)
		return
	}
	s.reloadRegistry(r)
	writeJSON(w, http.StatusCreated, toScheduleJSON(sc))
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	sc, err := s.st.GetSchedule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	sc, err := s.st.GetSchedule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var in scheduleInput
	if !decodeBody(w, r, &in) {
		return
	}
	targets, err := in.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc.Name = strings.TrimSpace(in.Name)
	sc.Action = in.Action
	sc.CronSpec = strings.TrimSpace(in.CronSpec)
	if in.Enabled != nil {
		sc.Enabled = *in.Enabled
	}
	sc.Targets = targets
	if err := s.st.UpdateSchedule(r.Context(), sc); err != nil {
		writeStoreError(w, err)
		return
	}
	s.reloadRegistry(r)
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	if err := s.st.DeleteSchedule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.reloadRegistry(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	var in struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if err := s.st.SetScheduleEnabled(r.Context(), id, in.Enabled); err != nil {
		writeStoreError(w, err)
		return
	}
	s.reloadRegistry(r)
	sc, err := s.st.GetSchedule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

type executionJSON struct {
	ID         int64     `json:"id"`
	ScheduleID int64     `json:"schedule_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	if _, err := s.st.GetSchedule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	limit := queryInt(r, "limit", 50)
	execs, err := s.st.ListExecutions(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]executionJSON, 0, len(execs))
	for _, e := range execs {
		out = append(out, executionJSON{
			ID:         e.ID,
			ScheduleID: e.ScheduleID,
			ExecutedAt: e.ExecutedAt,
			Success:    e.Success,
			Error:      e.Error,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ldpm/internal/energy"
	"ldpm/internal/store"
)

type powerEventJSON struct {
	ID          int64     `json:"id"`
	DisplayID   int64     `json:"display_id"`
	DisplayName string    `json:"display_name"`
	Action      string    `json:"action"`
	Source      string    `json:"source"`
	At          time.Time `json:"at"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	f := store.EventFilter{
		Action: r.URL.Query().Get("action"),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("display_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid display_id")
			return
		}
		f.DisplayID = id
	}
	if hours := queryInt(r, "hours", 0); hours > 0 {
		f.Since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}

	events, err := s.st.ListPowerEvents(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]powerEventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, powerEventJSON{
			ID:          e.ID,
			DisplayID:   e.DisplayID,
			DisplayName: e.DisplayName,
			Action:      e.Action,
			Source:      e.Source,
			At:          e.At,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseDateParam accepts YYYY-MM-DD or RFC 3339.
func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD or RFC 3339", raw)
}

func (s *Server) handleEnergySavings(w http.ResponseWriter, r *http.Request) {
	var start, end time.Time
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		t, err := parseDateParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		start = t
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		t, err := parseDateParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		end = t
	}
	var displayID int64
	if raw := r.URL.Query().Get("display_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid display_id")
			return
		}
		displayID = id
	}

	events, err := s.st.PowerEventsRange(r.Context(), start, end, displayID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	report := energy.Compute(s.energy, events, end, time.Now())
	writeJSON(w, http.StatusOK, report)
}

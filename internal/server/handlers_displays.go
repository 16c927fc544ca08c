package server

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ldpm/internal/bravia"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

type displayJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ip_address"`
	PSK       string    `json:"psk,omitempty"`
	Location  string    `json:"location,omitempty"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

func toDisplayJSON(d store.Display) displayJSON {
	return displayJSON{
		ID:        d.ID,
		Name:      d.Name,
		IPAddress: d.IPAddress,
		PSK:       d.PSK,
		Location:  d.Location,
		Status:    d.Status,
		LastSeen:  d.LastSeen,
		CreatedAt: d.CreatedAt,
	}
}

type displayInput struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	PSK       string `json:"psk"`
	Location  string `json:"location"`
}

func (in displayInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(in.IPAddress) == "" {
		return fmt.Errorf("ip_address is required")
	}
	return nil
}

func (s *Server) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	displays, err := s.st.ListDisplays(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]displayJSON, 0, len(displays))
	for _, d := range displays {
		out = append(out, toDisplayJSON(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDisplay(w http.ResponseWriter, r *http.Request) {
	var in displayInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := store.Display{
		Name:      strings.TrimSpace(in.Name),
		IPAddress: strings.TrimSpace(in.IPAddress),
		PSK:       in.PSK,
		Location:  in.Location,
	}
	if err := s.st.CreateDisplay(r.Context(), &d); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisplayJSON(d))
}

func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid display id")
		return
	}
	d, err := s.st.GetDisplay(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisplayJSON(d))
}

func (s *Server) handleUpdateDisplay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid display id")
		return
	}
	d, err := s.st.GetDisplay(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var in displayInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.Name = strings.TrimSpace(in.Name)
	d.IPAddress = strings.TrimSpace(in.IPAddress)
	d.PSK = in.PSK
	d.Location = in.Location
	if err := s.st.UpdateDisplay(r.Context(), d); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisplayJSON(d))
}

func (s *Server) handleDeleteDisplay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid display id")
		return
	}
	if err := s.st.DeleteDisplay(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type powerRequest struct {
	Action string `json:"action"` // "on" or "off"
}

type powerResult struct {
	DisplayID int64  `json:"display_id"`
	Name      string `json:"name"`
	Action    string `json:"action"`
	OK        bool   `json:"ok"`
}

func parseAction(raw string) (on bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}

func (s *Server) handleDisplayPower(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid display id")
		return
	}
	var in powerRequest
	if !decodeBody(w, r, &in) {
		return
	}
	on, ok := parseAction(in.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, `action must be "on" or "off"`)
		return
	}
	d, err := s.st.GetDisplay(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	okSet := s.ctrl.SetPower(r.Context(), d.IPAddress, d.PSK, on)
	if okSet {
		s.recordPower(r, d, on)
	}
	writeJSON(w, http.StatusOK, powerResult{
		DisplayID: d.ID, Name: d.Name, Action: in.Action, OK: okSet,
	})
}

// recordPower logs a successful manual command to the activity log and
// refreshes the display's cached status.
func (s *Server) recordPower(r *http.Request, d store.Display, on bool) {
	action, status := "off", string(bravia.StateStandby)
	if on {
		action, status = "on", string(bravia.StateActive)
	}
	now := time.Now()
	ev := store.PowerEvent{DisplayID: d.ID, Action: action, Source: "api", At: now}
	if err := s.st.AppendPowerEvent(r.Context(), &ev); err != nil {
		s.log.Warn("power event not recorded", logx.Int64("display", d.ID), logx.Err(err))
	}
	if err := s.st.SetDisplayStatus(r.Context(), d.ID, status, now); err != nil {
		s.log.Warn("display status not updated", logx.Int64("display", d.ID), logx.Err(err))
	}
}

func (s *Server) handleDisplayStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid display id")
		return
	}
	d, err := s.st.GetDisplay(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	state := s.ctrl.PowerStatus(r.Context(), d.IPAddress, d.PSK)
	if state != bravia.StateError {
		if err := s.st.SetDisplayStatus(r.Context(), d.ID, string(state), time.Now()); err != nil {
			s.log.Warn("display status not updated", logx.Int64("display", d.ID), logx.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"display_id": d.ID,
		"name":       d.Name,
		"status":     string(state),
	})
}

type importReport struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// handleImportDisplays ingests a CSV body with name,ip_address,psk,location
// rows. A header row is detected and skipped. Rows are independent:
// bad ones are reported, good ones are committed.
func (s *Server) handleImportDisplays(w http.ResponseWriter, r *http.Request) {
	rd := csv.NewReader(r.Body)
	rd.FieldsPerRecord = -1

	var rep importReport
	line := 0
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		if len(rec) < 2 {
			rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: need at least name,ip_address", line))
			continue
		}
		d := store.Display{
			Name:      strings.TrimSpace(rec[0]),
			IPAddress: strings.TrimSpace(rec[1]),
		}
		if len(rec) > 2 {
			d.PSK = strings.TrimSpace(rec[2])
		}
		if len(rec) > 3 {
			d.Location = strings.TrimSpace(rec[3])
		}
		if d.Name == "" || d.IPAddress == "" {
			rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: empty name or ip_address", line))
			continue
		}
		if err := s.st.CreateDisplay(r.Context(), &d); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		rep.Imported++
	}
	writeJSON(w, http.StatusOK, rep)
}

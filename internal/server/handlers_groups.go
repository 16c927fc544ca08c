package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ldpm/internal/store"
)

type groupJSON struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DisplayIDs  []int64   `json:"display_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

func toGroupJSON(g store.Group) groupJSON {
	ids := g.DisplayIDs
	if ids == nil {
		ids = []int64{}
	}
	return groupJSON{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		DisplayIDs:  ids,
		CreatedAt:   g.CreatedAt,
	}
}

type groupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.st.ListGroups(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]groupJSON, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupJSON(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in groupInput
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	g := store.Group{Name: strings.TrimSpace(in.Name), Description: in.Description}
	if err := s.st.CreateGroup(r.Context(), &g); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupJSON(g))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	g, err := s.st.GetGroup(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupJSON(g))
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	g, err := s.st.GetGroup(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var in groupInput
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	g.Name = strings.TrimSpace(in.Name)
	g.Description = in.Description
	if err := s.st.UpdateGroup(r.Context(), g); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupJSON(g))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if err := s.st.DeleteGroup(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type memberInput struct {
	DisplayIDs []int64 `json:"display_ids"`
}

func (s *Server) handleAddGroupDisplays(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, s.st.AddGroupDisplays)
}

func (s *Server) handleRemoveGroupDisplays(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, s.st.RemoveGroupDisplays)
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, groupID int64, ids []int64) error) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var in memberInput
	if !decodeBody(w, r, &in) {
		return
	}
	if len(in.DisplayIDs) == 0 {
		writeError(w, http.StatusBadRequest, "display_ids is required")
		return
	}
	if err := apply(r.Context(), id, in.DisplayIDs); err != nil {
		writeStoreError(w, err)
		return
	}
	g, err := s.st.GetGroup(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupJSON(g))
}

// handleGroupPower fans the action out to all member displays
// concurrently and reports per-display results.
func (s *Server) handleGroupPower(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
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
	if _, err := s.st.GetGroup(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	displays, err := s.st.GroupDisplays(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	results := s.applier.Apply(r.Context(), displays, on, true)
	out := make([]powerResult, 0, len(results))
	for _, res := range results {
		if res.OK {
			s.recordPower(r, res.Display, on)
		}
		out = append(out, powerResult{
			DisplayID: res.Display.ID,
			Name:      res.Display.Name,
			Action:    in.Action,
			OK:        res.OK,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

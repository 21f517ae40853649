package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// createEntryRequest is the body of POST /entries.
type createEntryRequest struct {
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
}

// updateOptionsRequest is the body of PUT /entries/{id}/options.
type updateOptionsRequest struct {
	Entities []string `json:"entities"`
}

// selectRequest is the body of POST /entries/{id}/select.
type selectRequest struct {
	Option string `json:"option"`
}

// handleListSources returns the select entities that can be used as sources.
//
// Query parameters:
//   - exclude_entry: omit that entry's own proxy entity
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.entries.Candidates(r.Context(), r.URL.Query().Get("exclude_entry"))
	if err != nil {
		if !writeEntryError(w, err, "failed to list sources") {
			s.logger.Error("listing sources failed", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources, "count": len(sources)})
}

// handleListEntries returns every config entry with its live state.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.entries.List(r.Context())
	if err != nil {
		s.logger.Error("listing entries failed", "error", err)
		writeInternalError(w, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleGetEntry returns a single entry by ID.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	status, err := s.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if !writeEntryError(w, err, "failed to get entry") {
			s.logger.Error("getting entry failed", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCreateEntry stores and loads a new entry.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.entries.Create(r.Context(), req.Name, req.Entities)
	if err != nil {
		if !writeEntryError(w, err, "failed to create entry") {
			s.logger.Error("creating entry failed", "name", req.Name, "error", err)
		}
		return
	}

	status, err := s.entries.Get(r.Context(), created.ID)
	if err != nil {
		writeJSON(w, http.StatusCreated, created)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

// handleUpdateOptions replaces an entry's source entities and reloads it.
func (s *Server) handleUpdateOptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Entities == nil {
		writeBadRequest(w, "entities is required")
		return
	}

	if _, err := s.entries.UpdateOptions(r.Context(), id, req.Entities); err != nil {
		if !writeEntryError(w, err, "failed to update entry") {
			s.logger.Error("updating entry failed", "entry_id", id, "error", err)
		}
		return
	}

	status, err := s.entries.Get(r.Context(), id)
	if err != nil {
		if !writeEntryError(w, err, "failed to get entry") {
			s.logger.Error("getting entry failed", "entry_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDeleteEntry unloads an entry and removes it.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.entries.Delete(r.Context(), id); err != nil {
		if !writeEntryError(w, err, "failed to delete entry") {
			s.logger.Error("deleting entry failed", "entry_id", id, "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelect picks an option on the entry's proxy, fanning it out to all sources.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Option) == "" {
		writeBadRequest(w, "option is required")
		return
	}

	if err := s.entries.Select(r.Context(), id, req.Option); err != nil {
		if !writeEntryError(w, err, "failed to select option") {
			s.logger.Error("selecting option failed", "entry_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"entry_id": id,
		"option":   req.Option,
	})
}

// handleRefresh recomputes an entry's options immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	options, err := s.entries.Refresh(r.Context(), id)
	if err != nil {
		if !writeEntryError(w, err, "failed to refresh entry") {
			s.logger.Error("refreshing entry failed", "entry_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry_id": id, "options": options})
}

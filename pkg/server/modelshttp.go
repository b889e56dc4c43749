package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"arunlabs/synapse/pkg/models"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	states, err := s.manager.ListModels(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": states})
}

type lifecycleRequest struct {
	Model  string         `json:"model"`
	Fields map[string]any `json:"fields"`
}

// handleLoadModel blocks until the runtime reports the model loaded or
// failed, so the caller knows the outcome in one round trip.
func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	if err := s.manager.Load(r.Context(), req.Model, req.Fields); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "model": req.Model})
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	if err := s.manager.Unload(r.Context(), req.Model); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unloaded", "model": req.Model})
}

func (s *Server) handleProfileSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"fields": models.Schema()})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	profile, err := s.manager.Store().Get(r.Context(), modelID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"model": modelID, "fields": profile})
}

// handlePutProfile replaces a model's profile wholesale.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	s.writeProfile(w, r, s.manager.Store().Set)
}

// handlePatchProfile merges fields into a model's profile. A null value
// unsets the field.
func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	s.writeProfile(w, r, s.manager.Store().Patch)
}

func (s *Server) writeProfile(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, modelID string, fields map[string]any) (map[string]any, error),
) {
	modelID := chi.URLParam(r, "model")
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	if err := models.ValidateFields(body.Fields); err != nil {
		s.writeError(w, err)
		return
	}
	effective, err := apply(r.Context(), modelID, body.Fields)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"model": modelID, "fields": effective})
}

// handleApplyProfile pushes persisted runtime fields to the runtime host
// without loading the model.
func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	profile, err := s.manager.ApplyProfile(r.Context(), modelID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"model": modelID, "fields": profile, "status": "applied"})
}

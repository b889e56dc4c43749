package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"arunlabs/synapse/pkg/voices"
)

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	list, err := s.voices.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"voices": list})
}

func (s *Server) handleCreateVoice(w http.ResponseWriter, r *http.Request) {
	name, files, err := s.parseVoiceUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	voice, err := s.voices.Create(name, files)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, voice)
}

func (s *Server) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	voice, err := s.voices.Get(chi.URLParam(r, "voice_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, voice)
}

func (s *Server) handleAddReferences(w http.ResponseWriter, r *http.Request) {
	_, files, err := s.parseVoiceUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	voice, err := s.voices.AddReferences(chi.URLParam(r, "voice_id"), files)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, voice)
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	voiceID := chi.URLParam(r, "voice_id")
	if err := s.voices.Delete(voiceID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "voice_id": voiceID})
}

// parseVoiceUpload reads a multipart voice upload: an optional "name" field
// and one or more "files" parts. Per-file size limits are enforced by the
// library's validation; the multipart reader is bounded to keep a runaway
// upload from exhausting memory.
func (s *Server) parseVoiceUpload(r *http.Request) (string, []voices.ReferenceFile, error) {
	limit := s.cfg.Voices.MaxReferenceBytes*int64(s.cfg.Voices.MaxReferenceFiles) + (1 << 20)
	r.Body = http.MaxBytesReader(nil, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, &voices.ValidationError{Field: "body", Message: "expected multipart form data"}
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue("name")
	parts := r.MultipartForm.File["files"]

	files := make([]voices.ReferenceFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			return "", nil, fmt.Errorf("failed to open uploaded file: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.Voices.MaxReferenceBytes+1))
		f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		files = append(files, voices.ReferenceFile{
			Filename:    part.Filename,
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return name, files, nil
}

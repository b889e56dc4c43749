package server

import "net/http"

// handleHealth runs a fresh aggregate check and reports per-backend detail.
// The gateway answers 200 even when degraded; the payload carries the
// distinction so orchestrators do not restart a gateway whose backends are
// the problem.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.health.Check(r.Context())
	s.writeJSON(w, http.StatusOK, snapshot)
}

// handleLiveness is the cheap liveness probe: no backend traffic.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

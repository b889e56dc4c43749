package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/models"
	"arunlabs/synapse/pkg/voices"
)

// errorBody is the gateway's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// writeError maps a component error to the status the gateway surfaces:
// validation 400, unknown resources 404, reconfigure timeout 504, and the
// backend client's own mapping for transport-level failures.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		modelValidation *models.ValidationError
		voiceValidation *voices.ValidationError
		modelNotFound   *models.NotFoundError
		voiceNotFound   *voices.NotFoundError
		reconfTimeout   *models.ReconfigureTimeoutError
	)

	status := 0
	switch {
	case errors.As(err, &modelValidation), errors.As(err, &voiceValidation):
		status = http.StatusBadRequest
	case errors.As(err, &modelNotFound), errors.As(err, &voiceNotFound):
		status = http.StatusNotFound
	case errors.As(err, &reconfTimeout):
		status = http.StatusGatewayTimeout
	default:
		status = backend.HTTPStatus(err)
	}

	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorBody{Detail: err.Error()})
}

// decodeJSON decodes a request body into v with unknown fields allowed.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

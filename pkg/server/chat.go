package server

import (
	"encoding/json"
	"net/http"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/routing"
)

// handleChatCompletions serves the OpenAI-compatible chat endpoint: resolve
// the model (auto-routing an un-pinned request), inject persisted profile
// defaults, and pass through to the LLM runtime. Streaming responses relay
// unbuffered.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}

	requested, _ := payload["model"].(string)
	resolved, err := s.manager.ResolveChatModel(r.Context(), requested, lastUserPrompt(payload))
	if err != nil {
		s.writeError(w, err)
		return
	}

	payload, err = s.manager.ApplyPersistedDefaults(r.Context(), resolved, payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload["model"] = resolved

	body, err := json.Marshal(payload)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "failed to encode request"})
		return
	}

	runtime, ok := s.runtimeBackend()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "no LLM runtime backend configured"})
		return
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	if accept := r.Header.Get("Accept"); accept != "" {
		header.Set("Accept", accept)
	}
	resp, err := s.client.Do(r.Context(), backend.Request{
		Backend: runtime,
		Method:  http.MethodPost,
		Path:    "/v1/chat/completions",
		Body:    body,
		Header:  header,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer resp.Body.Close()
	s.relay(w, resp)
}

// handleOpenAIModels aggregates /v1/models across every LLM backend into
// one OpenAI-style list. Backends that fail to answer are skipped; an
// aggregation endpoint going dark because one backend is down would be
// worse than a shorter list.
func (s *Server) handleOpenAIModels(w http.ResponseWriter, r *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}

	entries := make([]modelEntry, 0)
	for name, b := range s.table.Backends() {
		if b.Type != "llm" {
			continue
		}
		resp, err := s.client.Do(r.Context(), backend.Request{
			Backend: b,
			Method:  http.MethodGet,
			Path:    "/v1/models",
			NoRetry: true,
		})
		if err != nil {
			s.logger.Debug("skipping backend in model aggregation", "backend", name, "error", err)
			continue
		}
		var envelope struct {
			Data []modelEntry `json:"data"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)
		resp.Body.Close()
		if decodeErr != nil || resp.StatusCode != http.StatusOK {
			s.logger.Debug("skipping backend in model aggregation", "backend", name, "status", resp.StatusCode)
			continue
		}
		for _, entry := range envelope.Data {
			if entry.Object == "" {
				entry.Object = "model"
			}
			if entry.OwnedBy == "" {
				entry.OwnedBy = name
			}
			entries = append(entries, entry)
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": entries})
}

func (s *Server) runtimeBackend() (*routing.Backend, bool) {
	return s.table.Backend(s.cfg.Models.RuntimeBackend)
}

// lastUserPrompt extracts the newest user message's text content for the
// auto-routing classifier. Structured multi-part content contributes its
// text parts.
func lastUserPrompt(payload map[string]any) string {
	messages, ok := payload["messages"].([]any)
	if !ok {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			return content
		case []any:
			var text string
			for _, raw := range content {
				part, ok := raw.(map[string]any)
				if !ok || part["type"] != "text" {
					continue
				}
				if t, ok := part["text"].(string); ok {
					text += t + " "
				}
			}
			return text
		}
	}
	return ""
}

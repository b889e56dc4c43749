package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const feedTokenCookie = "synapse_feed_token"

// handleTerminalFeed serves the live log feed over server-sent events.
// Filters (min level, source) are fixed for the connection; the backlog is
// replayed first, then live events, with keepalive comments while idle.
func (s *Server) handleTerminalFeed(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TerminalFeed.Mode != "live" {
		s.writeJSON(w, http.StatusNotFound, errorBody{Detail: "terminal feed is disabled"})
		return
	}
	if !s.feedAuthorized(r) {
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "missing or invalid feed token"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "streaming unsupported"})
		return
	}

	level := r.URL.Query().Get("level")
	if level == "" {
		level = s.cfg.TerminalFeed.DefaultLevel
	}
	source := r.URL.Query().Get("source")

	sub := s.feed.Subscribe(level, source)
	defer s.feed.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	busMode := s.cfg.TerminalFeed.BusMode
	if busMode == "" {
		busMode = "local"
	}
	writeSSE(w, "meta", map[string]string{
		"instance": s.cfg.TerminalFeed.InstanceID,
		"mode":     s.cfg.TerminalFeed.Mode,
		"bus_mode": busMode,
	})
	flusher.Flush()

	keepalive := s.cfg.TerminalFeed.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.Events():
			writeSSE(w, "log", ev)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleTerminalStats(w http.ResponseWriter, r *http.Request) {
	if !s.feedAuthorized(r) {
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "missing or invalid feed token"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.feed.Stats())
}

// feedAuthorized checks the shared feed token when one is configured. The
// token travels as a cookie so the browser EventSource API, which cannot
// set headers, can authenticate; a token query parameter is accepted for
// the first connection and for curl.
func (s *Server) feedAuthorized(r *http.Request) bool {
	token := s.cfg.TerminalFeed.AccessToken
	if token == "" {
		return true
	}
	if cookie, err := r.Cookie(feedTokenCookie); err == nil && cookie.Value == token {
		return true
	}
	return r.URL.Query().Get("token") == token
}

// writeSSE writes one named server-sent event with a JSON payload.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, encoded)
}

package server

import (
	"io"
	"net/http"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/routing"
)

// maxProxyBody caps buffered proxy request bodies. Bodies are buffered so
// retried attempts can resend identical bytes.
const maxProxyBody = 256 << 20

// hopHeaders are not forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handleProxy serves every path the API surface does not claim, forwarding
// through the routing table. Unrouted paths get a 404.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	b, backendPath, ok := s.table.ResolvePath(r.URL.Path)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Detail: "no route for " + r.URL.Path})
		return
	}
	if r.URL.RawQuery != "" {
		backendPath += "?" + r.URL.RawQuery
	}
	s.forward(w, r, b, backendPath)
}

// forward performs the backend call through the resilient client and
// streams the response back. The request body is buffered so the client's
// retry loop can resend it.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, b *routing.Backend, path string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "failed to read request body"})
		return
	}

	header := make(http.Header)
	for key, values := range r.Header {
		header[key] = values
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}

	resp, err := s.client.Do(r.Context(), backend.Request{
		Backend: b,
		Method:  r.Method,
		Path:    path,
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

// relay copies an upstream response to the client, flushing as bytes arrive
// so streaming bodies (SSE, chunked audio) pass through unbuffered.
func (s *Server) relay(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		skip := false
		for _, h := range hopHeaders {
			if http.CanonicalHeaderKey(h) == http.CanonicalHeaderKey(key) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

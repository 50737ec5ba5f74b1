package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/unbundle/unbundle/internal/bus"
	"github.com/unbundle/unbundle/internal/transform"
)

// reloadSnippet is appended to every fallback-routed document. It reopens
// the live-reload stream on each page load (which is what re-registers the
// client after a drain) and relays browser console calls to the server.
const reloadSnippet = `
<script>
(() => {
  const ws = new WebSocket("ws://" + location.host + "/livereload");
  ws.onmessage = (msg) => {
    const data = JSON.parse(msg.data);
    if (data.type === "reload") location.reload();
  };
  const relay = (level, fn) => (...args) => {
    fn.apply(console, args);
    try {
      fetch("/__console", {
        method: "POST",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ level, args: args.map(String) }),
      });
    } catch (e) {}
  };
  for (const level of ["log", "warn", "error"]) {
    console[level] = relay(level, console[level]);
  }
})();
</script>`

// contentTypes maps served extensions onto response content types. Unknown
// extensions fall through to the platform mime table.
var contentTypes = map[string]string{
	".js":   "application/javascript; charset=utf-8",
	".mjs":  "application/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".map":  "application/json; charset=utf-8",
	".svg":  "image/svg+xml",
	".wasm": "application/wasm",
}

func contentTypeFor(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}

	return "application/octet-stream"
}

// handleRequest serves one resolved file: cache check, read, optional
// transform, cache write-back, respond. Every failure stays contained in
// this one request.
func (s *DevServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	requestPath := r.URL.Path

	// Cheap candidate check first: a cache hit skips extension probing and
	// the transformer entirely.
	candidate, _ := s.resolver.Candidate(requestPath)
	if data, ok := s.cache.Get(candidate); ok {
		s.respond(w, data, contentTypeFor(filepath.Ext(candidate)))
		return
	}

	resolved, ok := s.resolver.Resolve(requestPath)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "not found")
		return
	}

	// Routed documents cache under the resolved file, not the candidate
	if data, ok := s.cache.Get(resolved.Key); ok {
		s.respond(w, data, contentTypeFor(resolved.Extension))
		return
	}

	data, err := os.ReadFile(resolved.Path)
	if err != nil {
		s.logger.Error(r.Context(), err, "reading resolved file", "path", resolved.Path)
		s.respondError(w, r, http.StatusInternalServerError, "read error")
		return
	}

	switch {
	case resolved.IsRoute:
		// Augment before caching so repeat serves are byte-identical, and
		// announce the fresh browsing session to observers.
		data = append(data, []byte(reloadSnippet)...)
		s.bus.Publish(bus.NewSession{})

	case transform.ShouldTransform(resolved.Extension) && !s.resolver.IsModulePath(resolved.Path):
		data, err = s.transformer.Transform(resolved.Path, data)
		if err != nil {
			s.logger.Error(r.Context(), err, "transform failed", "path", resolved.Path)
			s.respondError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
	}

	s.cache.Set(resolved.Key, data)
	s.respond(w, data, contentTypeFor(resolved.Extension))
}

func (s *DevServer) respond(w http.ResponseWriter, data []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// respondError writes a non-200 response and reports it on the bus.
// Successful responses are not reported, keeping steady-state noise low.
func (s *DevServer) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.bus.Publish(bus.ServerResponse{
		Method: r.Method,
		Path:   r.URL.Path,
		Status: status,
	})

	http.Error(w, message, status)
}

// consolePayload is the body the reload snippet posts for browser logs.
type consolePayload struct {
	Level string   `json:"level"`
	Args  []string `json:"args"`
}

// handleConsole republishes browser console calls on the bus.
func (s *DevServer) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload consolePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.bus.Publish(bus.Console{Level: payload.Level, Args: payload.Args})
	w.WriteHeader(http.StatusNoContent)
}

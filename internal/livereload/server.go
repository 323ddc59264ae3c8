package livereload

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/themesmith/internal/logging"
	"github.com/conneroisu/themesmith/internal/middleware"
	"github.com/conneroisu/themesmith/internal/validation"
	"github.com/conneroisu/themesmith/internal/version"
)

//go:embed assets/livereload.js
var clientScript []byte

// ServerName is announced to browsers in the hello handshake.
const ServerName = "themesmith"

// Server serves the LiveReload endpoints and broadcasts reloads to every
// connected browser.
type Server struct {
	hub    *Hub
	logger logging.Logger

	addr       string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex

	shutdownOnce sync.Once
}

// NewServer creates a server that will listen on host:port. Port 0 picks a
// free port; Addr reports the bound address once the server is listening.
func NewServer(host string, port int, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		hub:    NewHub(ServerName, logger),
		logger: logger.WithComponent("livereload"),
		addr:   net.JoinHostPort(host, fmt.Sprintf("%d", port)),
	}
}

// Handler returns the HTTP handler with every LiveReload route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/livereload", s.hub)
	mux.HandleFunc("/livereload.js", s.handleScript)
	mux.HandleFunc("/changed", s.handleChanged)
	mux.HandleFunc("/", s.handleIndex)

	return middleware.NewChain(
		middleware.Recover(s.logger),
		middleware.Logging(s.logger),
		middleware.CORS(),
	).Apply(mux)
}

// ListenAndServe binds the listener and serves until Shutdown is called or
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("livereload listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler()}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info(ctx, "LiveReload server listening", "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = s.Shutdown(context.Background())
	})
	defer stop()

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("livereload server error: %w", err)
	}
	return nil
}

// Addr returns the bound address, or the configured one before listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Clients returns the connected browsers.
func (s *Server) Clients() []ClientInfo {
	return s.hub.Clients()
}

// Reload broadcasts the reload commands for paths. Stylesheets are swapped
// in place, one command each; any other path reloads the whole page, which
// also picks up every stylesheet, so only one command is sent.
func (s *Server) Reload(ctx context.Context, paths ...string) {
	messages := reloadMessages(paths)
	for _, msg := range messages {
		if err := s.hub.Broadcast(msg); err != nil {
			s.logger.Debug(ctx, "Reload not delivered", "path", msg.Path, "error", err.Error())
			return
		}
	}
	if len(messages) > 0 {
		s.logger.Info(ctx, "Reload", "files", len(paths), "clients", s.hub.Count())
	}
}

func reloadMessages(paths []string) []ReloadMessage {
	var messages []ReloadMessage
	for _, p := range paths {
		p = filepath.ToSlash(p)
		if !strings.EqualFold(path.Ext(p), ".css") {
			return []ReloadMessage{newReload(p)}
		}
		messages = append(messages, newReload(p))
	}
	return messages
}

// Alert shows message in every connected browser.
func (s *Server) Alert(message string) error {
	return s.hub.Broadcast(AlertMessage{Command: CommandAlert, Message: message})
}

// Shutdown disconnects every browser and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.hub.Shutdown(ctx); err != nil {
			shutdownErr = err
		}

		s.mu.RLock()
		server := s.httpServer
		s.mu.RUnlock()

		if server != nil {
			if err := server.Shutdown(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(clientScript)
}

type changedRequest struct {
	Files []string `json:"files"`
}

type changedResponse struct {
	Clients []ClientInfo `json:"clients"`
	Files   []string     `json:"files"`
}

// handleChanged triggers a reload from outside the watch loop, e.g. from an
// editor hook: GET /changed?files=a,b or POST {"files": [...]}.
func (s *Server) handleChanged(w http.ResponseWriter, r *http.Request) {
	var files []string

	switch r.Method {
	case http.MethodGet:
		for _, f := range strings.Split(r.URL.Query().Get("files"), ",") {
			if f = strings.TrimSpace(validation.SanitizeInput(f)); f != "" {
				files = append(files, f)
			}
		}
	case http.MethodPost:
		var req changedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		for _, f := range req.Files {
			if f = strings.TrimSpace(validation.SanitizeInput(f)); f != "" {
				files = append(files, f)
			}
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.Reload(r.Context(), files...)

	if files == nil {
		files = []string{}
	}
	writeJSON(w, changedResponse{Clients: s.hub.Clients(), Files: files})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]string{
		"themesmith": "Welcome",
		"version":    version.GetVersion(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

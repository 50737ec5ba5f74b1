// Package server wires the resolver, transformer, content cache, file
// watcher and live-reload hub into the development server's HTTP surface.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/unbundle/unbundle/internal/bus"
	"github.com/unbundle/unbundle/internal/cache"
	"github.com/unbundle/unbundle/internal/config"
	"github.com/unbundle/unbundle/internal/logging"
	"github.com/unbundle/unbundle/internal/resolver"
	"github.com/unbundle/unbundle/internal/transform"
	"github.com/unbundle/unbundle/internal/watcher"
)

const watchDebounce = 75 * time.Millisecond

// DevServer serves project sources with on-demand transformation and live
// reload. All mutable state (cache, pending failures, reload clients) hangs
// off this one value, so independent servers can coexist in tests.
type DevServer struct {
	config      *config.Config
	logger      logging.Logger
	bus         *bus.Bus
	resolver    *resolver.Resolver
	cache       *cache.ContentCache
	transformer *transform.Transformer
	watcher     *watcher.FileWatcher
	hub         *Hub

	httpServer   *http.Server
	listener     net.Listener
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New creates a development server. Compiler configuration is loaded here,
// once; a malformed compiler config is a fatal error and no server is
// returned.
func New(cfg *config.Config, logger logging.Logger, b *bus.Bus) (*DevServer, error) {
	root, err := filepath.Abs(cfg.Serve.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	options, err := transform.LoadOptions(root)
	if err != nil {
		return nil, err
	}

	fileWatcher, err := watcher.NewFileWatcher(watchDebounce, logger, cfg.Serve.ModulesDir, "node_modules")
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &DevServer{
		config:      cfg,
		logger:      logger.WithComponent("server"),
		bus:         b,
		resolver:    resolver.New(root, cfg.Serve),
		cache:       cache.NewContentCache(),
		transformer: transform.New(b, options),
		watcher:     fileWatcher,
		hub:         NewHub(logger),
	}, nil
}

// Start begins watching and serving. It blocks until the listener fails or
// the server is shut down.
func (s *DevServer) Start(ctx context.Context) error {
	if err := s.setupFileWatcher(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livereload", s.hub.Handle)
	mux.HandleFunc("/__console", s.handleConsole)
	mux.HandleFunc("/", s.handleRequest)

	handler := s.addMiddleware(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.serverMutex.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler: handler,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "serving", "addr", listener.Addr().String(), "root", s.resolver.Root())

	if s.config.Server.Open {
		go s.openBrowser(ctx, fmt.Sprintf("http://%s", listener.Addr().String()))
	}

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Addr returns the bound listen address, once Start has opened it.
func (s *DevServer) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *DevServer) setupFileWatcher(ctx context.Context) error {
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddFilter(watcher.NoTempFilter)
	s.watcher.AddFilter(watcher.NewSkipDirFilter(s.config.Serve.ModulesDir, "node_modules"))
	s.watcher.AddHandler(s.handleFileChange)

	if err := s.watcher.WatchRoots(s.resolver.Root(), s.resolver.PublicRoot()); err != nil {
		return fmt.Errorf("watching project roots: %w", err)
	}

	return s.watcher.Start(ctx)
}

// handleFileChange is the invalidation path: every change deletes the
// affected cache entries, triggers one reload broadcast, and retries files
// whose last transform failed.
func (s *DevServer) handleFileChange(events []watcher.ChangeEvent) error {
	ctx := context.Background()

	for _, event := range events {
		s.logger.Debug(ctx, "file changed", "path", event.Path, "kind", event.Type.String())

		for _, key := range s.resolver.CacheKeys(event.Path) {
			s.cache.Invalidate(key)
		}
	}

	s.hub.Broadcast()

	for _, event := range events {
		if !s.transformer.HasPending(event.Path) {
			continue
		}

		contents, err := os.ReadFile(event.Path)
		if err != nil {
			// Gone or unreadable: stop retrying it
			s.transformer.ClearPending(event.Path)
			continue
		}

		// Retry without waiting for a request; the result lands on the bus
		// either way and a success will be re-cached on next serve.
		s.transformer.Transform(event.Path, contents)
	}

	return nil
}

func (s *DevServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond) // Give server time to start

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "opening browser", "url", url)
	}
}

// addMiddleware wraps the mux with the permissive CORS and request logging
// layers. This is a trusted local tool, so cross-origin is wide open.
func (s *DevServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

// Shutdown closes every live-reload connection, stops the watcher and
// shuts the HTTP server down.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down")

		s.hub.Drain()

		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, err, "stopping watcher")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

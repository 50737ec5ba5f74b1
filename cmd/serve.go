package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unbundle/unbundle/internal/bus"
	"github.com/unbundle/unbundle/internal/config"
	"github.com/unbundle/unbundle/internal/errors"
	"github.com/unbundle/unbundle/internal/logging"
	"github.com/unbundle/unbundle/internal/server"
	"github.com/unbundle/unbundle/internal/typecheck"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development server with on-demand compilation and live reload",
	Long: `Start the development server. Sources are compiled per request,
watched for changes, and connected browsers reload automatically.

Examples:
  unbundle serve                         # Serve the current directory
  unbundle serve --port 3000             # Serve on port 3000
  unbundle serve --public dist           # Use a different public directory`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().String("root", ".", "Project root directory")
	serveCmd.Flags().String("public", "public", "Public directory relative to the root")
	serveCmd.Flags().String("fallback", "index.html", "SPA fallback document")
	serveCmd.Flags().String("typecheck", "", "External watch-mode typecheck command")
	serveCmd.Flags().BoolP("open", "o", false, "Open browser automatically")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))
	viper.BindPFlag("serve.root", serveCmd.Flags().Lookup("root"))
	viper.BindPFlag("serve.public_dir", serveCmd.Flags().Lookup("public"))
	viper.BindPFlag("serve.fallback", serveCmd.Flags().Lookup("fallback"))
	viper.BindPFlag("typecheck.command", serveCmd.Flags().Lookup("typecheck"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewDefaultLogger(viper.GetString("log-level"))
	eventBus := bus.New()

	srv, err := server.New(cfg, logger, eventBus)
	if err != nil {
		// No valid compiler configuration means no partial startup
		if errors.IsCategory(err, errors.CategoryConfig) {
			return fmt.Errorf("refusing to start: %w", err)
		}
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Warn(ctx, shutdownErr, "error during shutdown")
		}
		cancel()
	}()

	go logBusEvents(ctx, eventBus, logger)

	if cfg.Typecheck.Command != "" {
		checker := typecheck.New(eventBus, logger)
		go func() {
			if runErr := checker.Run(ctx, cfg.Typecheck.Command); runErr != nil {
				logger.Warn(ctx, runErr, "typecheck process ended")
			}
		}()
	}

	fmt.Printf("Serving %s at http://%s:%d\n", cfg.Serve.Root, cfg.Server.Host, cfg.Server.Port)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// logBusEvents is the terminal-side consumer of the event bus: it renders
// build, typecheck and request lifecycle events as log lines. Unknown
// variants are ignored, keeping the stream forward-compatible.
func logBusEvents(ctx context.Context, eventBus *bus.Bus, logger logging.Logger) {
	events, cancelSub := eventBus.Subscribe()
	defer cancelSub()

	log := logger.WithComponent("events")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case bus.TransformStart:
				log.Debug(ctx, "compiling", "file", e.File)
			case bus.TransformOK:
				log.Info(ctx, "compiled", "file", e.File)
			case bus.TransformError:
				log.Error(ctx, e.Err, "compile failed", "file", e.File)
			case bus.TypecheckReset:
				log.Debug(ctx, "typecheck pass started")
			case bus.TypecheckDone:
				log.Info(ctx, "typecheck waiting for changes")
			case bus.TypecheckMessage:
				log.Info(ctx, "typecheck", "output", e.Text)
			case bus.TypecheckErrorCount:
				log.Info(ctx, "typecheck finished", "errors", e.Count)
			case bus.Console:
				log.Info(ctx, "browser console", "level", e.Level, "args", e.Args)
			case bus.ServerResponse:
				log.Warn(ctx, nil, "request failed", "method", e.Method, "path", e.Path, "status", e.Status)
			case bus.NewSession:
				log.Debug(ctx, "new browsing session")
			}
		}
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-scan/internal/auth"
	"github.com/kozaktomas/face-scan/internal/backend"
	"github.com/kozaktomas/face-scan/internal/capture"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/landmarks"
	"github.com/kozaktomas/face-scan/internal/metrics"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/scheduler"
	"github.com/kozaktomas/face-scan/internal/storage"
	"github.com/kozaktomas/face-scan/internal/web"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

// historyLoadTimeout bounds the initial history load of a new web session.
const historyLoadTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Scan web server.
The server exposes the JSON API the mobile client drives: sign in, the scan
session with its event stream, scan history and workout routines.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (overrides WEB_SESSION_SECRET)")
	serveCmd.Flags().Bool("no-seed", false, "Do not store the default routines on first start")
}

// applyServeFlags lets command line flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

// newControllerFactory builds the per-session scan controllers of the web server.
// Each controller is fed photos over HTTP and loads its history in the background.
func newControllerFactory(cfg *config.Config, store scan.ObjectStorage, analyzer scan.Analyzer, results scan.ResultStore, log logr.Logger) scan.Factory {
	return func(sessionID, userID string) *scan.Controller {
		ctrl := scan.NewController(capture.NewPush(), store, analyzer, results, scan.Options{
			UserID:          userID,
			PipelineTimeout: cfg.Scan.PipelineTimeout,
			Logger:          log.WithName("scan"),
		})

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), historyLoadTimeout)
			defer cancel()
			if err := ctrl.LoadHistory(ctx); err != nil {
				log.Error(err, "Failed to load scan history", "user", userID)
			}
		}()

		return ctrl
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if cfg.Backend.URL == "" {
		return errors.New("BACKEND_URL environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := openResultBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer results.Close()
	if err := results.Validate(); err != nil {
		return err
	}

	analyzer, err := landmarks.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	objects, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create object storage: %w", err)
	}

	prefs, repo, err := openRoutines(cfg, log)
	if err != nil {
		return err
	}
	defer prefs.Close()

	if !mustGetBool(cmd, "no-seed") {
		if _, err := repo.SeedDefaults(ctx); err != nil {
			log.Error(err, "Failed to seed default routines")
		}
	}

	client, err := backend.New(cfg.Backend.URL, cfg.Backend.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	sessions := newSessionManager(cfg, results, log)
	registry := scan.NewRegistry(
		newControllerFactory(cfg, objects, analyzer, results.Results, log),
		cfg.Scan.IdleTimeout,
		log.WithName("registry"),
	)

	cleanup := scheduler.NewSessionCleanup(sessions, cfg.Web.CleanupSchedule, log)
	if err := cleanup.Start(ctx); err != nil {
		return err
	}
	defer cleanup.Stop()

	metrics.Register(prometheus.DefaultRegisterer)

	var uploads http.Handler
	if local, ok := objects.(*storage.Local); ok {
		uploads = local.Handler()
		log.Info("Serving uploaded photos", "dir", local.Dir())
	}

	server := web.NewServer(cfg, web.Dependencies{
		Auth:     auth.NewService(auth.NewIdentityClient(client), results.Users, log.WithName("auth")),
		Sessions: sessions,
		Registry: registry,
		Routines: repo,
		Uploads:  uploads,
		Log:      log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Scan API on http://%s:%d (analyzer: %s, results: %s)\n",
		cfg.Web.Host, cfg.Web.Port, analyzer.Name(), results.Name)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// newSessionManager persists sessions when the result backend can store them.
func newSessionManager(cfg *config.Config, results *database.Backend, log logr.Logger) *middleware.SessionManager {
	if results.Sessions == nil {
		log.Info("Sessions are kept in memory only")
		return middleware.NewSessionManager(cfg.Web.SessionSecret, nil, log)
	}
	return middleware.NewSessionManager(cfg.Web.SessionSecret, results.Sessions, log)
}

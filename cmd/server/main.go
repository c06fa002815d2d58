package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/config"
	"github.com/mmynk/pharmasupps/internal/inventory"
	"github.com/mmynk/pharmasupps/internal/metrics"
	"github.com/mmynk/pharmasupps/internal/middleware"
	"github.com/mmynk/pharmasupps/internal/notify"
	"github.com/mmynk/pharmasupps/internal/scanner"
	"github.com/mmynk/pharmasupps/internal/service"
	"github.com/mmynk/pharmasupps/internal/storage"
	"github.com/mmynk/pharmasupps/internal/storage/firestore"
	"github.com/mmynk/pharmasupps/internal/storage/sqlite"
	"github.com/mmynk/pharmasupps/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Operator accounts always live in SQLite, even when the catalog is in Firestore.
	users, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer users.Close()
	logger.Info("Storage initialized", "database", cfg.Storage.DBPath)

	var store storage.DocumentStore = users
	if cfg.Storage.Backend == config.BackendFirestore {
		fs, err := firestore.New(firestore.NewProvider(cfg.Firestore))
		if err != nil {
			return fmt.Errorf("failed to initialize firestore: %w", err)
		}
		defer fs.Close()
		store = fs
		logger.Info("Catalog backed by Firestore", "project_id", cfg.Firestore.ProjectID)
	}

	authn := auth.NewPasswordAuthenticator(users)
	sessions := auth.NewSessionProvider(authn, auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL), logger)
	if len(cfg.Auth.AdminEmails) == 0 {
		logger.Warn("No admin emails configured, catalog is read-only")
	}

	notifier := notify.New(
		notify.WithTTL(cfg.NotifyTTL),
		notify.WithCapacity(cfg.NotifyBacklog),
		notify.WithLogger(logger),
	)
	defer notifier.Close()

	recorder := metrics.NewRecorder()
	ctrl := inventory.New(store, nil, sessions,
		inventory.WithNotifier(notifier),
		inventory.WithLogger(logger),
		inventory.WithMetrics(recorder),
		inventory.WithTimeout(cfg.Inventory.OperationTimeout),
		inventory.WithCategoryMode(inventory.CategoryMode(cfg.Inventory.CategoryMode)),
		inventory.WithAdmins(auth.NewAdminList(cfg.Auth.AdminEmails)),
	)
	defer ctrl.Close()

	if err := ctrl.Load(ctx); err != nil {
		// The catalog stays empty until a Reload succeeds.
		logger.Error("Initial load failed", "error", err)
	}

	mux := http.NewServeMux()

	// Register Connect services
	interceptors := connect.WithInterceptors(middleware.LoggingInterceptor(logger))
	mux.Handle(service.NewInventoryServiceHandler(service.NewInventoryService(ctrl, logger), sessions, interceptors))
	mux.Handle(service.NewAuthServiceHandler(service.NewAuthService(ctrl, logger), sessions, interceptors))
	mux.Handle("/metrics", recorder.Handler())

	staticDir, err := filepath.Abs(cfg.Server.StaticPath)
	if err != nil {
		return fmt.Errorf("failed to resolve static path: %w", err)
	}
	logger.Info("Serving static files", "path", staticDir)
	mux.HandleFunc("/", staticHandler(staticDir))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(loggingMiddleware(logger, corsMiddleware(mux)), &http2.Server{})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Connect server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Scanner.Input != "" {
		input, closeInput, err := openScannerInput(cfg.Scanner.Input)
		if err != nil {
			return err
		}
		defer closeInput()

		session := scanner.NewSession(scanner.NewLineDecoder(input), ctrl, notifier, logger)
		g.Go(func() error {
			go func() {
				<-gctx.Done()
				session.Stop()
			}()
			// A scanner failure is reported to the operator and must not stop the server.
			_ = session.Start(gctx)
			return nil
		})
	}

	return g.Wait()
}

// openScannerInput opens the keyboard-wedge device. "-" reads stdin.
func openScannerInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open scanner input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// staticHandler serves the SPA shell for every non-API route.
func staticHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/pharmasupps.v1.") {
			http.NotFound(w, r)
			return
		}

		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(urlPath))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		logger.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

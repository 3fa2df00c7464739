package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/joho/godotenv/autoload"

	"zeptobook/internal/catalog"
	"zeptobook/internal/config"
	"zeptobook/internal/response"
	"zeptobook/internal/server"
	"zeptobook/internal/source"
	"zeptobook/internal/web"
	"zeptobook/internal/wishlist"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()

	if err != nil {
		slog.Error("aborting: " + err.Error())
		os.Exit(1)
	}
}

// run returns only after in-flight requests are done, storage is closed by then
func run(ctx context.Context) error {
	_, thisFile, _, _ := runtime.Caller(0)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	err = cfg.SetupLogging(path.Dir(path.Dir(path.Dir(thisFile))), middleware.RequestIDKey)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	pages, err := web.Parse()
	if err != nil {
		return err
	}

	repo, closeStorage, err := cfg.OpenStorage(ctx, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStorage()

	rv := source.NewRevalidator(cfg.NewSource(slog.Default()), slog.Default(), cfg.CatalogTTL)
	rv.FetchTimeout = cfg.FetchTimeout
	defer rv.Close()

	// warm the cache so that the first visitor does not wait on the remote
	warmed := make(chan struct{})
	defer func() { <-warmed }()
	go func() {
		defer close(warmed)
		if err := rv.Revalidate(ctx); err != nil {
			slog.Warn("Initial catalog load failed: " + err.Error())
		}
	}()

	br := catalog.NewBrowser()
	br.ClampPage = cfg.ClampPage

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Mount("/", server.Handler(
		rv,
		&wishlist.Store{Repo: repo, Logger: slog.Default()},
		br,
		&response.Responder{DebugMode: cfg.DebugMode},
		pages,
	))

	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.BindAddr, err)
	}

	slog.Info("Listening on " + ln.Addr().String())
	return serve(ctx, &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}, ln, shutdownTimeout)
}

// serve blocks until ctx is done and srv has drained its connections
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	shutdown := make(chan error, 1)
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	err := srv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}

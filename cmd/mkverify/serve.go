package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/mkverify/internal/api"
	"github.com/banshee-data/mkverify/internal/db"
	"github.com/banshee-data/mkverify/internal/monitoring"
)

func handleServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "mkverify.db", "SQLite database with recorded runs")
	listen := fs.String("listen", "localhost:8080", "Address to listen on")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open database: %v\n", err)
		return exitError
	}
	defer database.Close()

	mux, err := newServeMux(database)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to set up routes: %v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, &http.Server{Addr: *listen, Handler: mux}); err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return exitError
	}
	return exitSafe
}

// newServeMux mounts the debug admin routes and the run API.
func newServeMux(database *db.DB) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	apiMux := api.NewServer(db.NewRunStore(database.DB)).ServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", apiMux))
	return mux, nil
}

// serve runs server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return <-errc
}

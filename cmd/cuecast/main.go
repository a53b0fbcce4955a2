package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"cuecast/internal/hub"
	"cuecast/internal/maintenance"
	"cuecast/internal/server"
	"cuecast/internal/store"
	"cuecast/internal/transfer"
	"cuecast/internal/version"
)

func main() {
	listenAddr := envOr("LISTEN_ADDR", ":8765")
	dbPath := envOr("DB_PATH", "./data/cuecast.db")
	migrationsDir := envOr("MIGRATIONS_DIR", "./migrations")
	mediaDir := envOr("MEDIA_DIR", "./media")
	publicURL := envOr("PUBLIC_URL", "http://localhost:8765")
	corsOrigin := os.Getenv("CORS_ORIGIN")

	heartbeat := hub.DefaultHeartbeatInterval
	if v := os.Getenv("HEARTBEAT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			log.Fatalf("invalid HEARTBEAT_SECONDS %q", v)
		}
		heartbeat = time.Duration(secs) * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		log.Fatal(err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(migrationsDir); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	var transferOpts []transfer.Option
	transferOpts = append(transferOpts, transfer.WithStore(s))
	if v := os.Getenv("TRANSFER_RATE_LIMIT"); v != "" {
		bps, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid TRANSFER_RATE_LIMIT %q", v)
		}
		transferOpts = append(transferOpts, transfer.WithRateLimit(bps))
	}
	coordinator := transfer.NewCoordinator(mediaDir, transferOpts...)

	h := hub.New(
		hub.WithStore(s),
		hub.WithTransfers(coordinator),
		hub.WithHeartbeatInterval(heartbeat),
		hub.WithVersion(version.Current()),
		hub.WithPublicURL(publicURL),
	)
	h.Start(context.Background())
	defer h.Stop()

	var pruneOpts []maintenance.Option
	if v := os.Getenv("HISTORY_KEEP"); v != "" {
		keep, err := strconv.Atoi(v)
		if err != nil || keep <= 0 {
			log.Fatalf("invalid HISTORY_KEEP %q", v)
		}
		pruneOpts = append(pruneOpts, maintenance.WithKeep(keep))
	}
	pruner := maintenance.New(s, pruneOpts...)
	pruner.Start(context.Background())
	defer pruner.Stop()

	var opts []server.Option
	opts = append(opts, server.WithStore(s))
	opts = append(opts, server.WithTransfers(coordinator))
	if corsOrigin != "" {
		opts = append(opts, server.WithCORSOrigin(corsOrigin))
	}
	srv := server.NewServer(h, opts...)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("CueCast hub %s listening on %s", version.Current(), listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

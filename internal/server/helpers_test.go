package server

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"cuecast/internal/hub"
	"cuecast/internal/store"
	"cuecast/internal/transfer"
)

type testEnv struct {
	srv      *httptest.Server
	hub      *hub.Hub
	store    *store.Store
	transfers *transfer.Coordinator
	mediaDir string
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	_, f, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(f), "..", "..", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations dir: %v", err)
	}
	if err := s.Migrate(dir); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mediaDir := t.TempDir()
	coordinator := transfer.NewCoordinator(mediaDir,
		transfer.WithStore(s), transfer.WithLinger(time.Hour))

	h := hub.New(
		hub.WithStore(s),
		hub.WithTransfers(coordinator),
		hub.WithHeartbeatInterval(time.Minute),
		hub.WithVersion("test"),
	)
	h.Start(context.Background())
	t.Cleanup(h.Stop)

	handler := NewServer(h, WithStore(s), WithTransfers(coordinator))
	t.Cleanup(handler.Close)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, hub: h, store: s, transfers: coordinator, mediaDir: mediaDir}
}

func writeMediaFile(t *testing.T, env *testEnv, name string, size int) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(filepath.Join(env.mediaDir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

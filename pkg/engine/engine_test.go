package engine

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/logging"
	"github.com/rmax-ai/osmon/pkg/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "osmon.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// setupPoller wires a poller to a fake backend served over HTTP.
func setupPoller(t *testing.T, events EventAppender) (*Poller, *backend.FakeBackend) {
	t.Helper()
	fake := backend.NewFakeBackend()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL+"/api", time.Second)
	p := NewPoller(client, NewViewProjection(), events, nil, PollerConfig{Interval: time.Second}, logging.Discard())
	return p, fake
}

func countEvents(t *testing.T, s *store.Store, typ store.EventType) int64 {
	t.Helper()
	n, err := s.CountEvents(context.Background(), typ)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	return n
}

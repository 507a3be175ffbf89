package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ernie/hostlog/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "hostlog.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_UpsertServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := &domain.Server{Name: "ffa-1", Address: "10.0.0.5:27960", LogPath: "/srv/ffa-1/games.log"}
	if err := s.UpsertServer(ctx, srv); err != nil {
		t.Fatalf("UpsertServer() error = %v", err)
	}
	if srv.ID == 0 || srv.CreatedAt.IsZero() {
		t.Fatalf("UpsertServer() did not fill in the row: %+v", srv)
	}
	firstID := srv.ID

	moved := &domain.Server{Name: "ffa-1", Address: "10.0.0.9:27960", LogPath: "/srv/ffa-1/new.log"}
	if err := s.UpsertServer(ctx, moved); err != nil {
		t.Fatalf("UpsertServer() error = %v", err)
	}
	if moved.ID != firstID {
		t.Fatalf("upsert by name changed ID %d -> %d", firstID, moved.ID)
	}

	got, err := s.GetServerByID(ctx, firstID)
	if err != nil {
		t.Fatalf("GetServerByID() error = %v", err)
	}
	if got.Address != "10.0.0.9:27960" || got.LogPath != "/srv/ffa-1/new.log" {
		t.Fatalf("GetServerByID() = %+v", got)
	}
}

func TestStore_SyncServersPrunes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SyncServers(ctx, []domain.Server{{Name: "a"}, {Name: "b"}, {Name: "c"}}); err != nil {
		t.Fatalf("SyncServers() error = %v", err)
	}
	synced, err := s.SyncServers(ctx, []domain.Server{{Name: "b", LogPath: "/b.log"}})
	if err != nil {
		t.Fatalf("SyncServers() error = %v", err)
	}
	if synced[0].ID == 0 {
		t.Fatalf("SyncServers() did not return IDs")
	}

	all, err := s.GetServers(ctx)
	if err != nil {
		t.Fatalf("GetServers() error = %v", err)
	}
	if len(all) != 1 || all[0].Name != "b" || all[0].LogPath != "/b.log" {
		t.Fatalf("GetServers() = %+v, want only b", all)
	}

	if _, err := s.SyncServers(ctx, nil); err != nil {
		t.Fatalf("SyncServers(nil) error = %v", err)
	}
	if all, _ := s.GetServers(ctx); len(all) != 0 {
		t.Fatalf("GetServers() = %+v after empty sync", all)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetServerByID(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetServerByID() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetServerByName(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetServerByName() error = %v, want ErrNotFound", err)
	}
}

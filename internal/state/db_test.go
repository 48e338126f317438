package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func setupTestDB(t *testing.T, driver string) *DB {
	t.Helper()
	db, err := Open(driver, tempDBPath(t))
	if err != nil {
		if driver == DriverMattn {
			t.Skipf("mattn/go-sqlite3 unavailable (cgo disabled?): %v", err)
		}
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		if driver == DriverMattn {
			t.Skipf("mattn/go-sqlite3 unavailable (cgo disabled?): %v", err)
		}
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "state.db")
	db, err := Open("", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if db.Driver() != DriverModernc {
		t.Errorf("Driver() = %q, want default %q", db.Driver(), DriverModernc)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", tempDBPath(t)); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t, DriverModernc)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

func TestOpenProject(t *testing.T) {
	root := t.TempDir()
	db, err := OpenProject(DriverModernc, root)
	if err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}
	defer db.Close()
	if want := filepath.Join(root, ".swarmer", "state.db"); db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}
}

func testFrameLifecycle(t *testing.T, driver string) {
	db := setupTestDB(t, driver)

	f := &Frame{SwarmID: "swarm-1", Description: "Build a caching HTTP proxy system", Agents: 3, Tasks: 3}
	if err := db.CreateFrame(f); err != nil {
		t.Fatalf("CreateFrame failed: %v", err)
	}
	if f.ID == "" {
		t.Fatal("CreateFrame should assign an ID")
	}

	got, err := db.GetFrame(f.ID)
	if err != nil {
		t.Fatalf("GetFrame failed: %v", err)
	}
	if got.Status != models.SwarmStatusActive || got.EndedAt != nil {
		t.Errorf("new frame = %+v", got)
	}

	err = db.CloseFrame(f.ID, FrameOutcome{
		Status:    models.SwarmStatusCompleted,
		Completed: 3,
		Summary:   "3/3 tasks completed",
	})
	if err != nil {
		t.Fatalf("CloseFrame failed: %v", err)
	}
	got, err = db.GetFrame(f.ID)
	if err != nil {
		t.Fatalf("GetFrame failed: %v", err)
	}
	if got.Status != models.SwarmStatusCompleted || got.Completed != 3 || got.EndedAt == nil {
		t.Errorf("closed frame = %+v", got)
	}
	if got.Summary != "3/3 tasks completed" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestFrameLifecycle_Modernc(t *testing.T) {
	testFrameLifecycle(t, DriverModernc)
}

func TestFrameLifecycle_Mattn(t *testing.T) {
	testFrameLifecycle(t, DriverMattn)
}

func TestGetFrame_NotFound(t *testing.T) {
	db := setupTestDB(t, DriverModernc)
	if _, err := db.GetFrame("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFrame() error = %v, want ErrNotFound", err)
	}
	if err := db.CloseFrame("missing", FrameOutcome{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("CloseFrame() error = %v, want ErrNotFound", err)
	}
}

func TestListFrames_NewestFirst(t *testing.T) {
	db := setupTestDB(t, DriverModernc)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		f := &Frame{ID: id, SwarmID: id, Description: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.CreateFrame(f); err != nil {
			t.Fatalf("CreateFrame(%s) failed: %v", id, err)
		}
	}

	frames, err := db.ListFrames(2)
	if err != nil {
		t.Fatalf("ListFrames failed: %v", err)
	}
	if len(frames) != 2 || frames[0].ID != "new" || frames[1].ID != "mid" {
		t.Errorf("ListFrames(2) = %+v", frames)
	}
	if !frames[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("StartedAt = %v", frames[0].StartedAt)
	}
}

func TestEvents_AppendAndList(t *testing.T) {
	db := setupTestDB(t, DriverModernc)
	now := time.Now()
	events := []models.CoordinationEvent{
		{Seq: 1, Time: now, Type: models.EventSwarmStarted, Message: "started"},
		{Seq: 2, Time: now, Type: models.EventTaskCompleted, AgentID: "agent-1", TaskID: "task-1",
			Data: map[string]string{"branch": "agent/developer/cache-20260301"}},
	}
	for _, ev := range events {
		if err := db.AppendEvent("swarm-1", ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	// Duplicate sequence numbers are ignored.
	if err := db.AppendEvent("swarm-1", events[0]); err != nil {
		t.Fatalf("duplicate AppendEvent failed: %v", err)
	}

	got, err := db.ListEvents("swarm-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListEvents returned %d events, want 2", len(got))
	}
	if got[1].Type != models.EventTaskCompleted || got[1].AgentID != "agent-1" {
		t.Errorf("event = %+v", got[1])
	}
	if got[1].Data["branch"] != "agent/developer/cache-20260301" {
		t.Errorf("Data = %v", got[1].Data)
	}
	if other, _ := db.ListEvents("swarm-2"); len(other) != 0 {
		t.Errorf("events leaked across swarms: %v", other)
	}
}

func TestPurgeFrames(t *testing.T) {
	db := setupTestDB(t, DriverModernc)
	old := &Frame{ID: "old", SwarmID: "s-old", Description: "x", StartedAt: time.Now().Add(-48 * time.Hour)}
	open := &Frame{ID: "open", SwarmID: "s-open", Description: "x", StartedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Frame{ID: "fresh", SwarmID: "s-fresh", Description: "x"}
	for _, f := range []*Frame{old, open, fresh} {
		if err := db.CreateFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CloseFrame("old", FrameOutcome{Status: models.SwarmStatusCompleted}); err != nil {
		t.Fatal(err)
	}
	if err := db.CloseFrame("fresh", FrameOutcome{Status: models.SwarmStatusCompleted}); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendEvent("s-old", models.CoordinationEvent{Seq: 1, Time: time.Now(), Type: models.EventSwarmStarted}); err != nil {
		t.Fatal(err)
	}

	n, err := db.PurgeFrames(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeFrames failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d frames, want 1", n)
	}
	if _, err := db.GetFrame("open"); err != nil {
		t.Errorf("open frame should survive: %v", err)
	}
	if evs, _ := db.ListEvents("s-old"); len(evs) != 0 {
		t.Errorf("events of purged frame remain: %v", evs)
	}
}

package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/validate"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	got, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error = %v", err)
	}
	want := filepath.Join(dir, "atlasai", FileName)
	if got != want {
		t.Errorf("DefaultPath() = %v, want %v", got, want)
	}
}

func TestSQLiteStore_SaveAndList(t *testing.T) {
	s := newStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []Entry{
		{ID: "a1", CreatedAt: base, Kind: "suggest", Input: "start flask", Command: "flask run", RiskLevel: "safe", Confidence: 0.8, Provider: "local"},
		{ID: "b2", CreatedAt: base.Add(time.Minute), Kind: "debug", Input: "port in use", Command: "lsof -i :8000", RiskLevel: "safe", Warnings: []string{"w1"}},
		{ID: "c3", CreatedAt: base.Add(2 * time.Minute), Kind: "optimize", Input: "docker build .", Command: "docker build --pull ."},
	}
	for _, e := range entries {
		if err := s.Save(e); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		limit  int
		search string
		want   []string
	}{
		{"all newest first", 0, "", []string{"c3", "b2", "a1"}},
		{"limit", 2, "", []string{"c3", "b2"}},
		{"search input", 0, "flask", []string{"a1"}},
		{"search command", 0, "lsof", []string{"b2"}},
		{"no match", 0, "kubectl", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(tt.limit, tt.search)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() returned %d entries, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("List()[%d].ID = %v, want %v", i, got[i].ID, id)
				}
			}
		})
	}

	got, err := s.Get("b2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != "w1" {
		t.Errorf("Warnings = %v, want [w1]", got.Warnings)
	}
	if !got.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
}

func TestSQLiteStore_Get(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"abc-1", "abc-2", "xyz-1"} {
		if err := s.Save(Entry{ID: id, Kind: "suggest", Input: id}); err != nil {
			t.Fatal(err)
		}
	}

	if e, err := s.Get("xyz"); err != nil || e.ID != "xyz-1" {
		t.Errorf("Get(prefix) = %v, %v, want xyz-1", e, err)
	}
	if e, err := s.Get("abc-2"); err != nil || e.ID != "abc-2" {
		t.Errorf("Get(exact) = %v, %v, want abc-2", e, err)
	}
	if _, err := s.Get("abc"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("Get(ambiguous) error = %v, want ErrAmbiguous", err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Clear(t *testing.T) {
	s := newStore(t)
	if err := s.Save(Entry{Kind: "suggest", Input: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, err := s.List(0, "")
	if err != nil || len(got) != 0 {
		t.Errorf("List() after Clear = %v, %v, want empty", got, err)
	}
}

func TestNewEntry_Transcript(t *testing.T) {
	req := agent.NewRequest(agent.KindSuggest, "run my app")
	sess := agent.NewSession()
	sess.ProviderID = "local"
	sess.Append(api.Turn{Role: api.RoleUser, Content: "run my app"})
	rec := &validate.Recommendation{
		Chosen:   validate.Candidate{CommandText: "go run .", RiskLevel: validate.RiskSafe, Confidence: 0.9, SourceProvider: "local"},
		Warnings: []string{"note"},
	}

	e, err := NewEntry(req, rec, sess)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	if e.ID != sess.ID || e.Command != "go run ." || e.RiskLevel != "safe" {
		t.Errorf("NewEntry() = %+v", e)
	}

	s := newStore(t)
	if err := s.Save(e); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	back, err := got.Session()
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if back.ProviderID != "local" || len(back.Turns) != 1 || back.Turns[0].Content != "run my app" {
		t.Errorf("Session() = %+v", back)
	}
}

package semantic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"novabot/internal/domain"
	"novabot/internal/embedding/mock"
)

func newTestIndex(t *testing.T, persist bool) *Index {
	t.Helper()
	cfg := Config{
		Embedder:    mock.New(32),
		MaxDistance: -1,
	}
	if persist {
		dir := t.TempDir()
		cfg.IndexPath = filepath.Join(dir, "memory.idx")
		cfg.ItemsPath = filepath.Join(dir, "memory.json")
	}
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx
}

func TestStoreRejectsBlankText(t *testing.T) {
	idx := newTestIndex(t, false)
	if _, err := idx.Store(context.Background(), "u1", "   ", nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if idx.Stats().TotalMemories != 0 {
		t.Fatal("blank store must not add an item")
	}
}

func TestRetrieveFiltersBlankAndEmpty(t *testing.T) {
	idx := newTestIndex(t, false)
	ctx := context.Background()

	got, err := idx.Retrieve(ctx, "u1", "anything", 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty index: got %v, %v", got, err)
	}

	if _, err := idx.Store(ctx, "u1", "likes espresso", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err = idx.Retrieve(ctx, "u1", "   ", 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("blank query: got %v, %v", got, err)
	}
}

func TestRetrieveFiltersByUser(t *testing.T) {
	idx := newTestIndex(t, false)
	ctx := context.Background()

	for _, m := range []struct{ user, text string }{
		{"alice", "alice enjoys hiking in the mountains"},
		{"bob", "bob collects vintage synthesizers"},
		{"alice", "alice prefers tea over coffee"},
		{"bob", "bob lives in rotterdam"},
	} {
		if _, err := idx.Store(ctx, m.user, m.text, nil); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	got, err := idx.Retrieve(ctx, "alice", "outdoor hobbies", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected alice's 2 memories, got %d", len(got))
	}
	for _, m := range got {
		if m.UserID != "alice" {
			t.Fatalf("leaked memory from %q", m.UserID)
		}
	}
	// Closest first, similarity consistent with distance.
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Fatal("results not sorted by distance")
		}
	}
	for _, m := range got {
		want := 1 / (1 + m.Distance)
		if m.Similarity != want {
			t.Fatalf("similarity %v, want %v", m.Similarity, want)
		}
	}
}

func TestRetrieveSameTextIsExactMatch(t *testing.T) {
	idx := newTestIndex(t, false)
	ctx := context.Background()

	if _, err := idx.Store(ctx, "u1", "the cat sat on the mat", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := idx.Retrieve(ctx, "u1", "the cat sat on the mat", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Retrieve: %v, %v", got, err)
	}
	if got[0].Distance != 0 {
		t.Fatalf("identical text should embed to distance 0, got %v", got[0].Distance)
	}
	if got[0].Similarity != 1 {
		t.Fatalf("similarity = %v, want 1", got[0].Similarity)
	}
}

func TestMaxDistanceCutoff(t *testing.T) {
	idx, err := New(Config{Embedder: mock.New(32), MaxDistance: 1e-6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for _, text := range []string{"exact phrase", "completely unrelated text"} {
		if _, err := idx.Store(ctx, "u1", text, nil); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	got, err := idx.Retrieve(ctx, "u1", "exact phrase", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Text != "exact phrase" {
		t.Fatalf("tight cutoff should keep only the identical match, got %+v", got)
	}
}

func TestZeroMaxDistanceDisablesCutoff(t *testing.T) {
	idx, err := New(Config{Embedder: mock.New(32)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := idx.Store(ctx, "u1", "completely unrelated text", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := idx.Retrieve(ctx, "u1", "some other query entirely", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("zero cutoff should be disabled, got %d results", len(got))
	}
}

func TestStoreBatch(t *testing.T) {
	idx := newTestIndex(t, false)
	ids, err := idx.StoreBatch(context.Background(), "u1",
		[]string{"first fact", "second fact", "third fact"}, map[string]any{"source": "import"})
	if err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if idx.Stats().TotalMemories != 3 {
		t.Fatalf("stats = %+v", idx.Stats())
	}

	ids, err = idx.StoreBatch(context.Background(), "u1", []string{"kept", "   ", "", "also kept"}, nil)
	if err != nil {
		t.Fatalf("StoreBatch with blanks: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("blanks should be dropped, expected 2 ids, got %d", len(ids))
	}
	if idx.Stats().TotalMemories != 5 {
		t.Fatalf("stats = %+v", idx.Stats())
	}

	ids, err = idx.StoreBatch(context.Background(), "u1", []string{" ", ""}, nil)
	if err != nil || len(ids) != 0 {
		t.Fatalf("all-blank batch should store nothing, got ids=%v err=%v", ids, err)
	}
}

func TestDeleteUserRebuilds(t *testing.T) {
	idx := newTestIndex(t, false)
	ctx := context.Background()

	for _, m := range []struct{ user, text string }{
		{"alice", "alice memory one"},
		{"bob", "bob memory one"},
		{"alice", "alice memory two"},
		{"bob", "bob memory two"},
	} {
		if _, err := idx.Store(ctx, m.user, m.text, nil); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	removed, err := idx.DeleteUser(ctx, "alice")
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	stats := idx.Stats()
	if stats.TotalMemories != 2 || stats.IndexSize != 2 {
		t.Fatalf("stats after delete = %+v", stats)
	}
	if _, ok := stats.PerUser["alice"]; ok {
		t.Fatal("alice still present after delete")
	}

	// Bob's memories survive and still retrieve.
	got, err := idx.Retrieve(ctx, "bob", "bob memory one", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("bob should keep 2 memories, got %d", len(got))
	}
	if got[0].Text != "bob memory one" {
		t.Fatalf("exact match should rank first, got %q", got[0].Text)
	}

	removed, err = idx.DeleteUser(ctx, "alice")
	if err != nil || removed != 0 {
		t.Fatalf("second delete: %d, %v", removed, err)
	}
}

func TestUserMemoriesRecencyAndLimit(t *testing.T) {
	idx := newTestIndex(t, false)
	ctx := context.Background()
	for _, text := range []string{"oldest", "middle", "newest"} {
		if _, err := idx.Store(ctx, "u1", text, nil); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	got := idx.UserMemories("u1", 2, true)
	if len(got) != 2 || got[0].Text != "newest" || got[1].Text != "middle" {
		t.Fatalf("unexpected memories: %+v", got)
	}
	got = idx.UserMemories("u1", 2, false)
	if len(got) != 2 || got[0].Text != "oldest" || got[1].Text != "middle" {
		t.Fatalf("insertion order expected, got: %+v", got)
	}
	if got := idx.UserMemories("nobody", 0, true); len(got) != 0 {
		t.Fatalf("unknown user should have no memories, got %d", len(got))
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Embedder:    mock.New(32),
		MaxDistance: -1,
		IndexPath:   filepath.Join(dir, "memory.idx"),
		ItemsPath:   filepath.Join(dir, "memory.json"),
	}
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := idx.Store(ctx, "u1", "persisted fact", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := idx.Store(ctx, "u2", "another user", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	reloaded, err := New(cfg)
	if err != nil {
		t.Fatalf("New reload: %v", err)
	}
	stats := reloaded.Stats()
	if stats.TotalMemories != 2 || stats.UniqueUsers != 2 {
		t.Fatalf("reloaded stats = %+v", stats)
	}
	got, err := reloaded.Retrieve(ctx, "u1", "persisted fact", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Retrieve after reload: %v, %v", got, err)
	}
	if got[0].Metadata["k"] != "v" {
		t.Fatalf("metadata lost: %+v", got[0].Metadata)
	}
}

func TestCorruptPersistedStateStartsFresh(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Embedder:    mock.New(32),
		MaxDistance: -1,
		IndexPath:   filepath.Join(dir, "memory.idx"),
		ItemsPath:   filepath.Join(dir, "memory.json"),
	}
	if err := os.WriteFile(cfg.IndexPath, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(cfg.ItemsPath, []byte("[{}]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if idx.Stats().TotalMemories != 0 {
		t.Fatal("corrupt state must start the index empty")
	}
	// And it is usable after.
	if _, err := idx.Store(context.Background(), "u1", "fresh start", nil); err != nil {
		t.Fatalf("Store after corrupt load: %v", err)
	}
}

func TestMismatchedPairStartsFresh(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Embedder:    mock.New(32),
		MaxDistance: -1,
		IndexPath:   filepath.Join(dir, "memory.idx"),
		ItemsPath:   filepath.Join(dir, "memory.json"),
	}
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := idx.Store(context.Background(), "u1", "a fact", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// Item list drifts out of sync with the vector blob.
	if err := os.WriteFile(cfg.ItemsPath, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reloaded, err := New(cfg)
	if err != nil {
		t.Fatalf("New reload: %v", err)
	}
	if reloaded.Stats().TotalMemories != 0 {
		t.Fatal("mismatched pair must be discarded together")
	}
}

package profile

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"novabot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_GetUnknownUser(t *testing.T) {
	store := newTestStore(t)
	p, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Empty() {
		t.Fatalf("unknown user should yield empty profile, got %+v", p)
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "u1", domain.FieldName, "Alex"); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, "u1", domain.FieldPreferences, []string{"jazz", "hiking"}); err != nil {
		t.Fatal(err)
	}

	p, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Alex" {
		t.Fatalf("want name Alex, got %q", p.Name)
	}
	if len(p.Preferences) != 2 || p.Preferences[0] != "jazz" {
		t.Fatalf("preferences not round-tripped: %v", p.Preferences)
	}
}

func TestSQLiteStore_InvalidFieldNeverWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "u1", domain.ProfileField("password"), "hunter2")
	if !errors.Is(err, domain.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}

	p, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Empty() {
		t.Fatalf("rejected upsert must not create a row, got %+v", p)
	}
}

func TestSQLiteStore_PreferencesWrongType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "u1", domain.FieldPreferences, "not a list")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	p, _ := store.Get(ctx, "u1")
	if !p.Empty() {
		t.Fatalf("rejected upsert mutated storage: %+v", p)
	}
}

func TestSQLiteStore_UpsertManyValidatesUpFront(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertMany(ctx, "u1", map[domain.ProfileField]any{
		domain.FieldName:            "Alex",
		domain.ProfileField("role"): "admin",
	})
	if !errors.Is(err, domain.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}

	// All-or-nothing: the valid field must not have been applied.
	p, _ := store.Get(ctx, "u1")
	if p.Name != "" {
		t.Fatalf("partial write applied despite invalid field: %+v", p)
	}
}

func TestSQLiteStore_UpsertManyAppliesAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertMany(ctx, "u1", map[domain.ProfileField]any{
		domain.FieldName:     "Sam",
		domain.FieldLocation: "Lisbon",
		domain.FieldTone:     "casual",
	})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := store.Get(ctx, "u1")
	if p.Name != "Sam" || p.Location != "Lisbon" || p.Tone != "casual" {
		t.Fatalf("multi-field upsert incomplete: %+v", p)
	}
}

func TestSQLiteStore_DeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "u1", domain.FieldName, "Alex"); err != nil {
		t.Fatal(err)
	}

	found, err := store.Delete(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("first delete: found=%v err=%v", found, err)
	}

	found, err = store.Delete(ctx, "u1")
	if err != nil {
		t.Fatalf("second delete must succeed, got %v", err)
	}
	if found {
		t.Fatal("second delete reported a row")
	}
}

func TestSQLiteStore_CorruptPreferencesDegrade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "u1", domain.FieldName, "Alex"); err != nil {
		t.Fatal(err)
	}
	// Write corrupt JSON behind the store's back.
	if _, err := store.db.ExecContext(ctx,
		`UPDATE user_profile SET preferences = '{not json' WHERE user_id = ?`, "u1"); err != nil {
		t.Fatal(err)
	}

	p, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("corrupt preferences must not fail the read: %v", err)
	}
	if p.Name != "Alex" {
		t.Fatalf("scalar fields lost in degraded read: %+v", p)
	}
	if len(p.Preferences) != 0 {
		t.Fatalf("corrupt preferences should degrade to empty, got %v", p.Preferences)
	}
}

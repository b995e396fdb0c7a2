package profile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"novabot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ProfileStore on an embedded SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database and ensures the schema
// exists before first use.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile schema migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_profile (
		user_id     TEXT PRIMARY KEY,
		name        TEXT,
		location    TEXT,
		preferences TEXT,
		tone        TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (domain.Profile, error) {
	var name, location, preferences, tone sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT name, location, preferences, tone FROM user_profile WHERE user_id = ?`, userID,
	).Scan(&name, &location, &preferences, &tone)
	if err == sql.ErrNoRows {
		return domain.Profile{}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}

	return domain.Profile{
		Name:        name.String,
		Location:    location.String,
		Preferences: decodePreferences(preferences.String),
		Tone:        tone.String,
	}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, userID string, field domain.ProfileField, value any) error {
	return s.UpsertMany(ctx, userID, map[domain.ProfileField]any{field: value})
}

func (s *SQLiteStore) UpsertMany(ctx context.Context, userID string, updates map[domain.ProfileField]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := validateFields(updates); err != nil {
		return err
	}

	// Encode (and type-check) every value before opening the transaction
	// so a bad value never leaves a partial write behind.
	encoded := make(map[domain.ProfileField]string, len(updates))
	for field, value := range updates {
		enc, err := encodeValue(field, value)
		if err != nil {
			return err
		}
		encoded[field] = enc
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin profile update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_profile (user_id) VALUES (?)`, userID,
	); err != nil {
		return fmt.Errorf("ensure profile row: %w", err)
	}

	// Field names come from the closed ProfileField set, so interpolating
	// them into the statement is safe.
	for field, value := range encoded {
		query := fmt.Sprintf(
			`UPDATE user_profile SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, field)
		if _, err := tx.ExecContext(ctx, query, value, userID); err != nil {
			return fmt.Errorf("update profile field %s: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile update: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_profile WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete profile %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"novabot/internal/domain"
)

// PostgresStore implements domain.ProfileStore on a pgx connection pool.
// Functionally identical to the SQLite driver; intended for deployments
// that already run Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store := &PostgresStore{pool: pool, logger: logger}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile schema migration failed: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_profile (
		user_id     TEXT PRIMARY KEY,
		name        TEXT,
		location    TEXT,
		preferences TEXT,
		tone        TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (domain.Profile, error) {
	var name, location, preferences, tone *string
	err := s.pool.QueryRow(ctx,
		`SELECT name, location, preferences, tone FROM user_profile WHERE user_id = $1`, userID,
	).Scan(&name, &location, &preferences, &tone)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}

	p := domain.Profile{}
	if name != nil {
		p.Name = *name
	}
	if location != nil {
		p.Location = *location
	}
	if tone != nil {
		p.Tone = *tone
	}
	if preferences != nil {
		p.Preferences = decodePreferences(*preferences)
	}
	return p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, userID string, field domain.ProfileField, value any) error {
	return s.UpsertMany(ctx, userID, map[domain.ProfileField]any{field: value})
}

func (s *PostgresStore) UpsertMany(ctx context.Context, userID string, updates map[domain.ProfileField]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := validateFields(updates); err != nil {
		return err
	}

	encoded := make(map[domain.ProfileField]string, len(updates))
	for field, value := range updates {
		enc, err := encodeValue(field, value)
		if err != nil {
			return err
		}
		encoded[field] = enc
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin profile update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_profile (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
	); err != nil {
		return fmt.Errorf("ensure profile row: %w", err)
	}

	for field, value := range encoded {
		query := fmt.Sprintf(
			`UPDATE user_profile SET %s = $1, updated_at = NOW() WHERE user_id = $2`, field)
		if _, err := tx.Exec(ctx, query, value, userID); err != nil {
			return fmt.Errorf("update profile field %s: %w", field, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit profile update: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_profile WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"callscribe/pkg/logger"
	"callscribe/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresStorage is the conversation catalog read by the downstream
// search/question-answering layer. The pipeline itself never touches it;
// the indexer populates it from record-ready events.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to the catalog database and applies pending
// migrations.
func NewPostgresStorage(databaseURL string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Catalog database ready")

	return &PostgresStorage{pool: pool}, nil
}

func runMigrations(databaseURL string) error {
	migrationsPath, err := filepath.Abs("migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}
	migrationsURL := fmt.Sprintf("file://%s", filepath.ToSlash(migrationsPath))

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err == migrate.ErrNoChange {
		logger.Info("No new migrations to apply")
	} else {
		logger.Info("Migrations applied", zap.String("path", migrationsURL))
	}

	return nil
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// UpsertConversation inserts a catalog row, replacing any existing row for
// the same record key so re-indexing an input is idempotent.
func (s *PostgresStorage) UpsertConversation(ctx context.Context, conv *model.StoredConversation) error {
	query := `
		INSERT INTO conversations (
			id, source, transcription_id, transcription_url,
			duration, conversation, phrases, record_key, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (record_key) DO UPDATE SET
			source = EXCLUDED.source,
			transcription_id = EXCLUDED.transcription_id,
			transcription_url = EXCLUDED.transcription_url,
			duration = EXCLUDED.duration,
			conversation = EXCLUDED.conversation,
			phrases = EXCLUDED.phrases,
			created_at = EXCLUDED.created_at`

	_, err := s.pool.Exec(ctx, query,
		conv.ID,
		conv.Source,
		conv.TranscriptionID,
		conv.TranscriptionURL,
		conv.Duration,
		conv.Conversation,
		conv.Phrases,
		conv.RecordKey,
		conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	return nil
}

// GetConversationByRecordKey retrieves one catalog row.
func (s *PostgresStorage) GetConversationByRecordKey(ctx context.Context, recordKey string) (*model.StoredConversation, error) {
	query := `
		SELECT id, source, transcription_id, transcription_url,
		       duration, conversation, phrases, record_key, created_at
		FROM conversations
		WHERE record_key = $1`

	var conv model.StoredConversation
	row := s.pool.QueryRow(ctx, query, recordKey)

	err := row.Scan(
		&conv.ID,
		&conv.Source,
		&conv.TranscriptionID,
		&conv.TranscriptionURL,
		&conv.Duration,
		&conv.Conversation,
		&conv.Phrases,
		&conv.RecordKey,
		&conv.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("conversation not found")
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// ListRecentConversations returns the newest catalog rows, newest first.
func (s *PostgresStorage) ListRecentConversations(ctx context.Context, limit int) ([]*model.StoredConversation, error) {
	query := `
		SELECT id, source, transcription_id, transcription_url,
		       duration, conversation, phrases, record_key, created_at
		FROM conversations
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*model.StoredConversation
	for rows.Next() {
		var conv model.StoredConversation
		err := rows.Scan(
			&conv.ID,
			&conv.Source,
			&conv.TranscriptionID,
			&conv.TranscriptionURL,
			&conv.Duration,
			&conv.Conversation,
			&conv.Phrases,
			&conv.RecordKey,
			&conv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, &conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return convs, nil
}

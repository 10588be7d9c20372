package vectorstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// PostgresStore keeps each session's chunk set in a pgvector-backed table.
// Dropping a session's chunks is a plain DELETE, so store lifetime follows
// session lifetime without any schema churn.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := ensureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func ensureBootstrapped(ctx context.Context, db *sql.DB) error {
	bootCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(bootCtx, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'session_chunks'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if exists {
		return nil
	}

	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(bootCtx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(bootCtx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Replace swaps the session's chunk set atomically: readers see either the
// previous set or the new one, never a partial mix.
func (s *PostgresStore) Replace(ctx context.Context, sessionID string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_chunks WHERE session_id = $1`, sessionID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO session_chunks
			(id, session_id, position, page, char_offset, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, sessionID, ch.Sequence, ch.Page, ch.Offset, ch.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query finds the top-k chunks nearest to the query vector within a session.
func (s *PostgresStore) Query(ctx context.Context, sessionID string, vector []float32, topK int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT id, position, page, char_offset, text, embedding, embedding <-> $2 AS distance
		FROM session_chunks
		WHERE session_id = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(vector)
	rows, err := s.db.QueryContext(ctx, q, sessionID, vec, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			ch       models.Chunk
			emb      pgvector.Vector
			distance float64
		)
		if err := rows.Scan(&ch.ID, &ch.Sequence, &ch.Page, &ch.Offset, &ch.Text, &emb, &distance); err != nil {
			return nil, err
		}
		ch.SessionID = sessionID
		ch.Embedding = emb.Slice()
		out = append(out, models.ScoredChunk{Chunk: ch, Score: 1 / (1 + distance)})
	}
	return out, rows.Err()
}

// All returns the session's chunks in document order.
func (s *PostgresStore) All(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, position, page, char_offset, text, embedding
		FROM session_chunks
		WHERE session_id = $1
		ORDER BY position ASC
	`
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch  models.Chunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.Sequence, &ch.Page, &ch.Offset, &ch.Text, &emb); err != nil {
			return nil, err
		}
		ch.SessionID = sessionID
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_chunks WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

func (s *PostgresStore) Drop(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_chunks WHERE session_id = $1`, sessionID)
	return err
}

var _ core.VectorStore = (*PostgresStore)(nil)

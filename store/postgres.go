package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/config"
	arberrors "github.com/sweetpotato0/arborflow/errors"
)

// PostgresStore implements ReportStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "arborflow",
		SSLMode:  "disable",
	}
}

// NewPostgresStore creates a new PostgreSQL-based report store
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS assessments (
		session_id VARCHAR(255) PRIMARY KEY,
		step VARCHAR(64) NOT NULL,
		complete BOOLEAN NOT NULL,
		snapshot JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_updated_at ON assessments(updated_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save upserts the snapshot row for its session.
func (s *PostgresStore) Save(ctx context.Context, snap *assessment.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return arberrors.ErrInvalidInput
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	query := `
	INSERT INTO assessments (session_id, step, complete, snapshot, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (session_id)
	DO UPDATE SET step = $2, complete = $3, snapshot = $4, updated_at = $5
	`
	_, err = s.db.ExecContext(ctx, query, snap.SessionID, string(snap.Step), snap.Complete, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store snapshot in PostgreSQL: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for a session.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*assessment.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM assessments WHERE session_id = $1`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, arberrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from PostgreSQL: %w", err)
	}
	var snap assessment.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns the session ids with stored snapshots.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM assessments ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots in PostgreSQL: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the snapshot for a session.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assessments WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot from PostgreSQL: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return arberrors.ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

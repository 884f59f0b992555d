package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"

	_ "github.com/lib/pq"
)

// PostgreSQLStore is the sync-side profile cache.
type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB reuses an existing database connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{db: db, log: log}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize marketing_profiles table: "+err.Error())
		return nil, fmt.Errorf("failed to initialize marketing_profiles table: %w", err)
	}

	log.LogDatabase("READY", "marketing_profiles", "profile cache initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS marketing_profiles (
        email VARCHAR(320) PRIMARY KEY,
        profile_id VARCHAR(64) NOT NULL,
        first_name VARCHAR(200),
        synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create marketing_profiles table: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) GetProfileID(ctx context.Context, email string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx,
		"SELECT profile_id FROM marketing_profiles WHERE email = $1", email).
		Scan(&profileID)
	if err != nil {
		return "", err
	}
	return profileID, nil
}

func (s *PostgreSQLStore) SaveProfile(ctx context.Context, profile models.MarketingProfile) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO marketing_profiles (email, profile_id, first_name, synced_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (email) DO UPDATE SET profile_id = $2, first_name = $3, synced_at = $4`,
		profile.Email, profile.ID, profile.FirstName, time.Now())
	return err
}

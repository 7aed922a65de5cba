package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

type PostgresSettingsRepository struct {
	db *sql.DB
}

func NewPostgresSettingsRepository(db *sql.DB) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

func (r *PostgresSettingsRepository) GetSystemSettings(ctx context.Context) (*domain.SystemSettings, error) {
	query := `SELECT system_margin, updated_at FROM system_settings WHERE id = $1`

	var settings domain.SystemSettings
	err := r.db.QueryRowContext(ctx, query, domain.SettingsSingletonID).Scan(
		&settings.SystemMargin,
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query system settings: %w", err)
	}
	return &settings, nil
}

func (r *PostgresSettingsRepository) UpdateSystemSettings(ctx context.Context, systemMargin float64) (*domain.SystemSettings, error) {
	query := `
		INSERT INTO system_settings (id, system_margin, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET system_margin = $2, updated_at = $3
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, domain.SettingsSingletonID, systemMargin, now); err != nil {
		return nil, fmt.Errorf("upsert system settings: %w", err)
	}

	return &domain.SystemSettings{SystemMargin: systemMargin, UpdatedAt: now}, nil
}

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetUserMargin(ctx context.Context, userID string) (float64, error) {
	query := `SELECT personal_margin FROM users WHERE user_id = $1`

	var margin sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&margin)
	if err == sql.ErrNoRows {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query user margin: %w", err)
	}
	return margin.Float64, nil
}

func (r *PostgresUserRepository) SetUserMargin(ctx context.Context, userID string, margin float64) error {
	query := `
		INSERT INTO users (user_id, personal_margin, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET personal_margin = $2, updated_at = $3
	`

	if _, err := r.db.ExecContext(ctx, query, userID, margin, time.Now()); err != nil {
		return fmt.Errorf("upsert user margin: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetSpendLimit(ctx context.Context, userID string) (float64, error) {
	query := `SELECT spend_limit_usd FROM users WHERE user_id = $1`

	var limit sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query spend limit: %w", err)
	}
	return limit.Float64, nil
}

func (r *PostgresUserRepository) SetSpendLimit(ctx context.Context, userID string, limitUSD float64) error {
	query := `
		INSERT INTO users (user_id, spend_limit_usd, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET spend_limit_usd = $2, updated_at = $3
	`

	if _, err := r.db.ExecContext(ctx, query, userID, limitUSD, time.Now()); err != nil {
		return fmt.Errorf("upsert spend limit: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bananabot/pricing/internal/crypto"
	"github.com/bananabot/pricing/internal/domain"
)

type PostgresCallerRepository struct {
	db        *sql.DB
	encryptor *crypto.Encryptor
}

// NewPostgresCallerRepository stores callers in Postgres. When encryptor is
// non-nil the plaintext API key is also stored encrypted at rest so admins
// can recover it; lookups always go through the SHA-256 hash.
func NewPostgresCallerRepository(db *sql.DB, encryptor *crypto.Encryptor) *PostgresCallerRepository {
	return &PostgresCallerRepository{db: db, encryptor: encryptor}
}

func (r *PostgresCallerRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Caller, error) {
	if apiKey == "" {
		return nil, domain.ErrInvalidAPIKey
	}

	hash := crypto.HashAPIKey(apiKey)

	query := `
		SELECT id, name, api_key_hash, role, rate_limit_rpm, enabled, created_at, updated_at
		FROM callers
		WHERE api_key_hash = $1 AND enabled = true
	`

	caller, err := scanCaller(r.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCallerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query caller: %w", err)
	}
	return caller, nil
}

func (r *PostgresCallerRepository) GetByID(ctx context.Context, id string) (*domain.Caller, error) {
	query := `
		SELECT id, name, api_key_hash, role, rate_limit_rpm, enabled, created_at, updated_at
		FROM callers
		WHERE id = $1
	`

	caller, err := scanCaller(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCallerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query caller: %w", err)
	}
	return caller, nil
}

func (r *PostgresCallerRepository) List(ctx context.Context) ([]*domain.Caller, error) {
	query := `
		SELECT id, name, api_key_hash, role, rate_limit_rpm, enabled, created_at, updated_at
		FROM callers
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query callers: %w", err)
	}
	defer rows.Close()

	var callers []*domain.Caller
	for rows.Next() {
		caller, err := scanCaller(rows)
		if err != nil {
			return nil, fmt.Errorf("scan caller: %w", err)
		}
		callers = append(callers, caller)
	}
	return callers, rows.Err()
}

func (r *PostgresCallerRepository) Create(ctx context.Context, caller *domain.Caller) error {
	encryptedKey, err := r.encryptKey(caller.APIKey)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO callers (id, name, api_key_hash, api_key_encrypted, role, rate_limit_rpm, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		caller.ID,
		caller.Name,
		caller.APIKeyHash,
		encryptedKey,
		caller.Role,
		caller.RateLimitRPM,
		caller.Enabled,
		caller.CreatedAt,
		caller.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert caller: %w", err)
	}
	return nil
}

func (r *PostgresCallerRepository) Update(ctx context.Context, caller *domain.Caller) error {
	encryptedKey, err := r.encryptKey(caller.APIKey)
	if err != nil {
		return err
	}

	query := `
		UPDATE callers
		SET name = $2, api_key_hash = $3,
		    api_key_encrypted = COALESCE($4, api_key_encrypted),
		    role = $5, rate_limit_rpm = $6, enabled = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		caller.ID,
		caller.Name,
		caller.APIKeyHash,
		encryptedKey,
		caller.Role,
		caller.RateLimitRPM,
		caller.Enabled,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update caller: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrCallerNotFound
	}
	return nil
}

func (r *PostgresCallerRepository) encryptKey(apiKey string) (sql.NullString, error) {
	if apiKey == "" || r.encryptor == nil {
		return sql.NullString{}, nil
	}
	encrypted, err := r.encryptor.Encrypt(apiKey)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encrypt api key: %w", err)
	}
	return sql.NullString{String: encrypted, Valid: true}, nil
}

func scanCaller(row rowScanner) (*domain.Caller, error) {
	var caller domain.Caller
	err := row.Scan(
		&caller.ID,
		&caller.Name,
		&caller.APIKeyHash,
		&caller.Role,
		&caller.RateLimitRPM,
		&caller.Enabled,
		&caller.CreatedAt,
		&caller.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &caller, nil
}

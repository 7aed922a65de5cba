package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

// PostgresQuoteRepository implements ledger.Tracker on Postgres.
type PostgresQuoteRepository struct {
	db *sql.DB
}

func NewPostgresQuoteRepository(db *sql.DB) *PostgresQuoteRepository {
	return &PostgresQuoteRepository{db: db}
}

func (r *PostgresQuoteRepository) Record(ctx context.Context, record domain.QuoteRecord) error {
	query := `
		INSERT INTO quote_records (id, caller_id, user_id, model_id,
		                           prompt_tokens, output_tokens, image_count, video_seconds, audio_minutes,
		                           cost_usd, price_usd, margin_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.CallerID,
		record.UserID,
		record.ModelID,
		record.Usage.PromptTokens,
		record.Usage.OutputTokens,
		record.Usage.ImageCount,
		record.Usage.VideoSeconds,
		record.Usage.AudioMinutes,
		record.CostUSD,
		record.PriceUSD,
		record.MarginUSD,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote record: %w", err)
	}
	return nil
}

func (r *PostgresQuoteRepository) GetUserQuotes(ctx context.Context, userID string, since time.Time) ([]domain.QuoteRecord, error) {
	query := `
		SELECT id, caller_id, user_id, model_id,
		       prompt_tokens, output_tokens, image_count, video_seconds, audio_minutes,
		       cost_usd, price_usd, margin_usd, created_at
		FROM quote_records
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("query quote records: %w", err)
	}
	defer rows.Close()

	var records []domain.QuoteRecord
	for rows.Next() {
		var record domain.QuoteRecord
		err := rows.Scan(
			&record.ID,
			&record.CallerID,
			&record.UserID,
			&record.ModelID,
			&record.Usage.PromptTokens,
			&record.Usage.OutputTokens,
			&record.Usage.ImageCount,
			&record.Usage.VideoSeconds,
			&record.Usage.AudioMinutes,
			&record.CostUSD,
			&record.PriceUSD,
			&record.MarginUSD,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quote record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *PostgresQuoteRepository) GetUserTotalPrice(ctx context.Context, userID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(price_usd), 0)
		FROM quote_records
		WHERE user_id = $1 AND created_at >= $2
	`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total price: %w", err)
	}
	return total, nil
}

func (r *PostgresQuoteRepository) GetTotalMargin(ctx context.Context, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(margin_usd), 0)
		FROM quote_records
		WHERE created_at >= $1
	`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total margin: %w", err)
	}
	return total, nil
}

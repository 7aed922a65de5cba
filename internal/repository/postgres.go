// Postgres-backed repositories. Schema is managed externally; see the
// migrations directory of the deployment repo.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

const tariffColumns = `
	model_id, price_unit, input_price, output_price, input_long_price, output_long_price,
	output_image_price, image_tokens_low_res, image_tokens_high_res,
	output_video_price, credits_per_second, credit_price_usd, output_audio_price,
	model_margin, created_at, updated_at
`

type PostgresTariffRepository struct {
	db *sql.DB
}

func NewPostgresTariffRepository(db *sql.DB) *PostgresTariffRepository {
	return &PostgresTariffRepository{db: db}
}

func (r *PostgresTariffRepository) GetTariff(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM model_tariffs WHERE model_id = $1`

	tariff, err := scanTariff(r.db.QueryRowContext(ctx, query, modelID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrTariffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tariff: %w", err)
	}
	return tariff, nil
}

func (r *PostgresTariffRepository) List(ctx context.Context) ([]*domain.ModelTariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM model_tariffs ORDER BY model_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []*domain.ModelTariff
	for rows.Next() {
		tariff, err := scanTariff(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tariff: %w", err)
		}
		tariffs = append(tariffs, tariff)
	}
	return tariffs, rows.Err()
}

func (r *PostgresTariffRepository) Create(ctx context.Context, tariff *domain.ModelTariff) error {
	query := `
		INSERT INTO model_tariffs (` + tariffColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query, tariffArgs(tariff)...)
	if err != nil {
		return fmt.Errorf("insert tariff: %w", err)
	}
	return nil
}

func (r *PostgresTariffRepository) Update(ctx context.Context, tariff *domain.ModelTariff) error {
	query := `
		UPDATE model_tariffs
		SET price_unit = $2, input_price = $3, output_price = $4,
		    input_long_price = $5, output_long_price = $6,
		    output_image_price = $7, image_tokens_low_res = $8, image_tokens_high_res = $9,
		    output_video_price = $10, credits_per_second = $11, credit_price_usd = $12,
		    output_audio_price = $13, model_margin = $14, updated_at = $15
		WHERE model_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		tariff.ModelID,
		nullPriceUnit(tariff.PriceUnit),
		nullFloatArg(tariff.InputPrice),
		nullFloatArg(tariff.OutputPrice),
		nullFloatArg(tariff.InputLongPrice),
		nullFloatArg(tariff.OutputLongPrice),
		nullFloatArg(tariff.OutputImagePrice),
		nullIntArg(tariff.ImageTokensLowRes),
		nullIntArg(tariff.ImageTokensHighRes),
		nullFloatArg(tariff.OutputVideoPrice),
		nullFloatArg(tariff.CreditsPerSecond),
		nullFloatArg(tariff.CreditPriceUSD),
		nullFloatArg(tariff.OutputAudioPrice),
		tariff.ModelMargin,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update tariff: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrTariffNotFound
	}
	return nil
}

func (r *PostgresTariffRepository) Delete(ctx context.Context, modelID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM model_tariffs WHERE model_id = $1`, modelID)
	if err != nil {
		return fmt.Errorf("delete tariff: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrTariffNotFound
	}
	return nil
}

func tariffArgs(t *domain.ModelTariff) []any {
	return []any{
		t.ModelID,
		nullPriceUnit(t.PriceUnit),
		nullFloatArg(t.InputPrice),
		nullFloatArg(t.OutputPrice),
		nullFloatArg(t.InputLongPrice),
		nullFloatArg(t.OutputLongPrice),
		nullFloatArg(t.OutputImagePrice),
		nullIntArg(t.ImageTokensLowRes),
		nullIntArg(t.ImageTokensHighRes),
		nullFloatArg(t.OutputVideoPrice),
		nullFloatArg(t.CreditsPerSecond),
		nullFloatArg(t.CreditPriceUSD),
		nullFloatArg(t.OutputAudioPrice),
		t.ModelMargin,
		t.CreatedAt,
		t.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTariff(row rowScanner) (*domain.ModelTariff, error) {
	var tariff domain.ModelTariff
	var priceUnit sql.NullString
	var inputPrice, outputPrice, inputLongPrice, outputLongPrice sql.NullFloat64
	var outputImagePrice, outputVideoPrice, creditsPerSecond, creditPriceUSD, outputAudioPrice sql.NullFloat64
	var imageTokensLowRes, imageTokensHighRes sql.NullInt64

	err := row.Scan(
		&tariff.ModelID,
		&priceUnit,
		&inputPrice,
		&outputPrice,
		&inputLongPrice,
		&outputLongPrice,
		&outputImagePrice,
		&imageTokensLowRes,
		&imageTokensHighRes,
		&outputVideoPrice,
		&creditsPerSecond,
		&creditPriceUSD,
		&outputAudioPrice,
		&tariff.ModelMargin,
		&tariff.CreatedAt,
		&tariff.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if priceUnit.Valid {
		tariff.PriceUnit = domain.PriceUnit(priceUnit.String)
	}
	tariff.InputPrice = nullFloat(inputPrice)
	tariff.OutputPrice = nullFloat(outputPrice)
	tariff.InputLongPrice = nullFloat(inputLongPrice)
	tariff.OutputLongPrice = nullFloat(outputLongPrice)
	tariff.OutputImagePrice = nullFloat(outputImagePrice)
	tariff.ImageTokensLowRes = nullInt(imageTokensLowRes)
	tariff.ImageTokensHighRes = nullInt(imageTokensHighRes)
	tariff.OutputVideoPrice = nullFloat(outputVideoPrice)
	tariff.CreditsPerSecond = nullFloat(creditsPerSecond)
	tariff.CreditPriceUSD = nullFloat(creditPriceUSD)
	tariff.OutputAudioPrice = nullFloat(outputAudioPrice)

	return &tariff, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloatArg(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullIntArg(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullPriceUnit(u domain.PriceUnit) sql.NullString {
	if u == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(u), Valid: true}
}

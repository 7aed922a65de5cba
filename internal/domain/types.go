package domain

import "time"

// PriceUnit selects which cost path a tariff is billed on.
// An empty value is treated as PriceUnitPerMillionTokens.
type PriceUnit string

const (
	PriceUnitPerMillionTokens PriceUnit = "per_million_tokens"
	PriceUnitPerSecond        PriceUnit = "per_second"
)

// DefaultImageTokens is the per-image token cost used when a tariff
// defines neither a high-res nor a low-res image token count.
const DefaultImageTokens = 1120

// DefaultCreditPriceUSD is the USD price of one internal video credit
// when the tariff leaves CreditPriceUSD unset.
const DefaultCreditPriceUSD = 0.01

// ModelTariff is the pricing configuration for one billable model.
// All USD prices are per 1,000,000 tokens unless noted otherwise.
// Nil pointers mean "not set"; absence is priced as zero except where
// an explicit fallback chain applies.
type ModelTariff struct {
	ModelID   string    `json:"model_id"`
	PriceUnit PriceUnit `json:"price_unit,omitempty"`

	InputPrice      *float64 `json:"input_price,omitempty"`
	OutputPrice     *float64 `json:"output_price,omitempty"`
	InputLongPrice  *float64 `json:"input_long_price,omitempty"`
	OutputLongPrice *float64 `json:"output_long_price,omitempty"`

	OutputImagePrice   *float64 `json:"output_image_price,omitempty"`
	ImageTokensLowRes  *int64   `json:"image_tokens_low_res,omitempty"`
	ImageTokensHighRes *int64   `json:"image_tokens_high_res,omitempty"`

	// OutputVideoPrice is USD per second, used only with PriceUnitPerSecond.
	OutputVideoPrice *float64 `json:"output_video_price,omitempty"`

	// CreditsPerSecond/CreditPriceUSD form the alternate video path:
	// internal credits consumed per second, each priced in USD.
	CreditsPerSecond *float64 `json:"credits_per_second,omitempty"`
	CreditPriceUSD   *float64 `json:"credit_price_usd,omitempty"`

	// OutputAudioPrice is USD per minute, additive on top of any other path.
	OutputAudioPrice *float64 `json:"output_audio_price,omitempty"`

	// ModelMargin is a fractional markup specific to this model (0.10 = +10%).
	ModelMargin float64 `json:"model_margin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemSettings is the process-wide singleton pricing configuration,
// keyed by SettingsSingletonID in storage.
type SystemSettings struct {
	SystemMargin float64   `json:"system_margin"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SettingsSingletonID is the fixed key of the one SystemSettings row.
const SettingsSingletonID = "singleton"

// Usage describes one request's billable consumption. All fields are
// optional; zero means the dimension was not consumed.
type Usage struct {
	PromptTokens int64   `json:"prompt_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
	ImageCount   int64   `json:"image_count,omitempty"`
	VideoSeconds float64 `json:"video_seconds,omitempty"`
	AudioMinutes float64 `json:"audio_minutes,omitempty"`
}

// IsZero reports whether no usage dimension was consumed.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.OutputTokens == 0 && u.ImageCount == 0 &&
		u.VideoSeconds == 0 && u.AudioMinutes == 0
}

// PriceResult is the outcome of one price calculation.
// CostUSD carries up to 6 fractional digits; PriceUSD exactly 2.
// Margin is PriceUSD - CostUSD and includes rounding residue.
type PriceResult struct {
	CostUSD  float64 `json:"cost_usd"`
	PriceUSD float64 `json:"price_usd"`
	Margin   float64 `json:"margin"`
}

// Caller is an API client of this service (the bot backend, the admin
// dashboard). Authentication is by API key; APIKey is only populated on
// creation and key rotation, storage keeps the hash.
type Caller struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key,omitempty"`
	APIKeyHash   string    `json:"-"`
	Role         string    `json:"role"`
	RateLimitRPM int       `json:"rate_limit_rpm"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QuoteRecord is one persisted price calculation, the unit of the
// usage/margin ledger.
type QuoteRecord struct {
	ID        string    `json:"id"`
	CallerID  string    `json:"caller_id"`
	UserID    string    `json:"user_id,omitempty"`
	ModelID   string    `json:"model_id"`
	Usage     Usage     `json:"usage"`
	CostUSD   float64   `json:"cost_usd"`
	PriceUSD  float64   `json:"price_usd"`
	MarginUSD float64   `json:"margin_usd"`
	CreatedAt time.Time `json:"created_at"`
}

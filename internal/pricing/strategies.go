package pricing

import "github.com/bananabot/pricing/internal/domain"

// A costStrategy contributes one billing dimension to the running cost.
// Strategies are evaluated in a fixed order; a replacing strategy discards
// whatever earlier strategies produced, an additive one stacks on top.
// Keeping this explicit makes the overwrite ordering between the token,
// per-second video and per-credit video paths testable in isolation.
type costStrategy struct {
	name     string
	additive bool
	applies  func(t *domain.ModelTariff, u domain.Usage) bool
	amount   func(t *domain.ModelTariff, u domain.Usage, creditPrice float64) float64
}

const tokensPerMillion = 1_000_000

var costStrategies = []costStrategy{
	{
		name: "tokens",
		applies: func(t *domain.ModelTariff, u domain.Usage) bool {
			return t.PriceUnit == domain.PriceUnitPerMillionTokens || t.PriceUnit == ""
		},
		amount: tokenCost,
	},
	{
		name: "video_per_second",
		applies: func(t *domain.ModelTariff, u domain.Usage) bool {
			return u.VideoSeconds > 0 && t.OutputVideoPrice != nil &&
				t.PriceUnit == domain.PriceUnitPerSecond
		},
		amount: func(t *domain.ModelTariff, u domain.Usage, _ float64) float64 {
			return u.VideoSeconds * *t.OutputVideoPrice
		},
	},
	{
		// Evaluated after the per-second path so the credit path wins
		// when a tariff defines both.
		name: "video_per_credit",
		applies: func(t *domain.ModelTariff, u domain.Usage) bool {
			return u.VideoSeconds > 0 && t.CreditsPerSecond != nil
		},
		amount: func(t *domain.ModelTariff, u domain.Usage, creditPrice float64) float64 {
			if t.CreditPriceUSD != nil {
				creditPrice = *t.CreditPriceUSD
			}
			return u.VideoSeconds * *t.CreditsPerSecond * creditPrice
		},
	},
	{
		name:     "audio",
		additive: true,
		applies: func(t *domain.ModelTariff, u domain.Usage) bool {
			return u.AudioMinutes > 0 && t.OutputAudioPrice != nil
		},
		amount: func(t *domain.ModelTariff, u domain.Usage, _ float64) float64 {
			return u.AudioMinutes * *t.OutputAudioPrice
		},
	},
}

// accumulateCost walks the strategy chain. creditPrice is the deployment
// default for one video credit, used when the tariff has no override.
func accumulateCost(t *domain.ModelTariff, u domain.Usage, creditPrice float64) float64 {
	var cost float64
	for _, s := range costStrategies {
		if !s.applies(t, u) {
			continue
		}
		if s.additive {
			cost += s.amount(t, u, creditPrice)
		} else {
			cost = s.amount(t, u, creditPrice)
		}
	}
	return cost
}

func tokenCost(t *domain.ModelTariff, u domain.Usage, _ float64) float64 {
	inputCost := float64(u.PromptTokens) / tokensPerMillion * priceOr(t.InputLongPrice, t.InputPrice)
	outputCost := float64(u.OutputTokens) / tokensPerMillion * priceOr(t.OutputLongPrice, t.OutputPrice)

	imageTokens := float64(u.ImageCount) * imageTokensPerImage(t)
	imageCost := imageTokens / tokensPerMillion * priceOr(t.OutputImagePrice, t.OutputPrice)

	return inputCost + outputCost + imageCost
}

func imageTokensPerImage(t *domain.ModelTariff) float64 {
	switch {
	case t.ImageTokensHighRes != nil:
		return float64(*t.ImageTokensHighRes)
	case t.ImageTokensLowRes != nil:
		return float64(*t.ImageTokensLowRes)
	default:
		return domain.DefaultImageTokens
	}
}

// priceOr returns the first set price of the pair, or 0 when neither is set.
func priceOr(override, base *float64) float64 {
	if override != nil {
		return *override
	}
	if base != nil {
		return *base
	}
	return 0
}

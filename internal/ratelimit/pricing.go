// Package ratelimit tracks per-task token usage and provider rate
// limiting, pausing new work while the provider is throttling and
// auto-resuming when the pause window passes.
package ratelimit

import "github.com/davenport-labs/flotilla/pkg/models"

// ModelPricing contains pricing per 1M tokens for a model tier.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultModelPricing maps model tiers to their per-million-token
// prices, used for batch cost estimates.
var DefaultModelPricing = map[models.Model]ModelPricing{
	models.ModelOpus:   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	models.ModelSonnet: {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	models.ModelHaiku:  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// Cost returns the dollar cost of a token count under a model's
// pricing, or 0 for an unknown model.
func Cost(model models.Model, inputTokens, outputTokens int64) float64 {
	pricing, ok := DefaultModelPricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*pricing.InputPerMillion +
		float64(outputTokens)/1_000_000*pricing.OutputPerMillion
}

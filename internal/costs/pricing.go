package costs

import "strings"

const perMillion = 1_000_000.0

// anthropicRates maps a model family to USD per million input and output tokens.
var anthropicRates = []struct {
	family        string
	input, output float64
}{
	{family: "haiku", input: 1.00, output: 5.00},
	{family: "sonnet", input: 3.00, output: 15.00},
	{family: "opus", input: 15.00, output: 75.00},
}

// EstimateAnthropicUSD returns estimated USD cost for Anthropic models.
// Returns ok=false when no known fallback pricing exists for the model.
func EstimateAnthropicUSD(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))
	for _, rate := range anthropicRates {
		if strings.Contains(modelName, rate.family) {
			return (float64(inputTokens)/perMillion)*rate.input + (float64(outputTokens)/perMillion)*rate.output, true
		}
	}
	return 0, false
}

// EstimateUSD returns fallback estimated USD cost for providers that do not
// report a price with the response.
func EstimateUSD(providerName, model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	switch strings.ToLower(strings.TrimSpace(providerName)) {
	case "anthropic":
		return EstimateAnthropicUSD(model, inputTokens, outputTokens)
	default:
		return 0, false
	}
}

// ResolveUSD prefers the provider-reported cost and falls back to EstimateUSD.
// Unknown pricing resolves to zero.
func ResolveUSD(providerName, model string, reported *float64, inputTokens, outputTokens int) float64 {
	if reported != nil {
		return *reported
	}
	usd, _ := EstimateUSD(providerName, model, inputTokens, outputTokens)
	return usd
}

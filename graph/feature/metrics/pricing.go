package metrics

import "strings"

// ModelPricing is the USD price of one million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost returns the USD cost of a call.
func (p ModelPricing) Cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1e6*p.InputPer1M + float64(tokensOut)/1e6*p.OutputPer1M
}

// DefaultPricing holds list prices for common models. Dated model versions
// resolve through PriceOf's prefix match.
var DefaultPricing = map[string]ModelPricing{
	"gpt-4o":            {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":       {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":       {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo":     {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-5-sonnet": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-sonnet":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-haiku":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-1.5-pro":    {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":  {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.0-pro":    {InputPer1M: 0.50, OutputPer1M: 1.50},
}

// PriceOf looks model up in table, falling back to the longest key that is
// a prefix of model ("gpt-4o-2024-08-06" prices as "gpt-4o").
func PriceOf(table map[string]ModelPricing, model string) (ModelPricing, bool) {
	if p, ok := table[model]; ok {
		return p, true
	}
	best := ""
	for k := range table {
		if strings.HasPrefix(model, k) && len(k) > len(best) {
			best = k
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return table[best], true
}

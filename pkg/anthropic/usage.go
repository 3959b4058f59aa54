package anthropic

import (
	"strings"

	"go.uber.org/zap"
)

// TokenUsage counts tokens billed for one request.
type TokenUsage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// price is USD per million tokens.
type price struct {
	input, output float64
}

// familyPrices is matched by substring so dated model ids resolve.
var familyPrices = []struct {
	family string
	price  price
}{
	{"haiku", price{input: 0.80, output: 4.00}},
	{"sonnet", price{input: 3.00, output: 15.00}},
	{"opus", price{input: 15.00, output: 75.00}},
}

// Cost estimates the USD cost of u under model. Unknown models cost 0.
// Cache writes bill at 1.25x input and cache reads at 0.1x input.
func (u TokenUsage) Cost(model string) float64 {
	m := strings.ToLower(model)
	for _, fp := range familyPrices {
		if !strings.Contains(m, fp.family) {
			continue
		}
		in := fp.price.input / 1e6
		return float64(u.InputTokens)*in +
			float64(u.OutputTokens)*fp.price.output/1e6 +
			float64(u.CacheWriteTokens)*in*1.25 +
			float64(u.CacheReadTokens)*in*0.1
	}
	return 0
}

// Log writes u at debug level, tagged with the caller's purpose.
func (u TokenUsage) Log(model, purpose string) {
	zap.L().Debug("anthropic: usage",
		zap.String("model", model),
		zap.String("purpose", purpose),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
		zap.Float64("cost_usd", u.Cost(model)),
	)
}

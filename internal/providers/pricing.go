package providers

import "strings"

// rate is a model price in USD per 1K tokens.
type rate struct {
	input  float64
	output float64
}

func (r rate) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*r.input + float64(outputTokens)/1000*r.output
}

type prefixRate struct {
	prefix string
	rate   rate
}

// priceList resolves a model name to a rate: exact names first, then the
// first matching prefix. Prefixes must be ordered most specific first.
type priceList struct {
	exact    map[string]rate
	prefixes []prefixRate
}

func (p priceList) lookup(model string) (rate, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return rate{}, false
	}
	if r, ok := p.exact[model]; ok {
		return r, true
	}
	for _, rule := range p.prefixes {
		if strings.HasPrefix(model, rule.prefix) {
			return rule.rate, true
		}
	}
	return rate{}, false
}

// estimate prices a request, returning zero for unknown models.
func (p priceList) estimate(model string, inputTokens, outputTokens int) float64 {
	r, ok := p.lookup(model)
	if !ok {
		return 0
	}
	return r.cost(inputTokens, outputTokens)
}

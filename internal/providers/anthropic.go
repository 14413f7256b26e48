package providers

type AnthropicProvider struct{}

func (AnthropicProvider) Name() string {
	return "anthropic"
}

func (AnthropicProvider) Hosts() []string {
	return []string{"api.anthropic.com"}
}

func (AnthropicProvider) ModelPrefixes() []string {
	return []string{"claude-"}
}

// Cache reads and cache writes are billed as input.
var anthropicUsage = usageSchema{
	input:      []string{"input_tokens"},
	extraInput: []string{"cache_creation_input_tokens", "cache_read_input_tokens"},
	output:     []string{"output_tokens"},
}

func (AnthropicProvider) ParseResponse(body any) Usage {
	return anthropicUsage.parse(body)
}

func (AnthropicProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return anthropicPrices.estimate(model, inputTokens, outputTokens)
}

var (
	opusRate    = rate{input: 0.015, output: 0.075}
	opus46Rate  = rate{input: 0.005, output: 0.025}
	sonnetRate  = rate{input: 0.003, output: 0.015}
	haiku4Rate  = rate{input: 0.001, output: 0.005}
	haiku35Rate = rate{input: 0.0008, output: 0.004}
	haiku3Rate  = rate{input: 0.00025, output: 0.00125}
)

var anthropicPrices = priceList{
	exact: map[string]rate{
		"claude-opus-4-1":           opusRate,
		"claude-opus-4-6":           opus46Rate,
		"claude-sonnet-4-20250514":  sonnetRate,
		"claude-haiku-4-5-20251001": haiku4Rate,
		"claude-3-5-haiku-20241022": haiku35Rate,
	},
	prefixes: []prefixRate{
		{prefix: "claude-opus-4-6-", rate: opus46Rate},
		{prefix: "claude-opus-4-", rate: opusRate},
		{prefix: "claude-sonnet-4-", rate: sonnetRate},
		{prefix: "claude-haiku-4-", rate: haiku4Rate},
		{prefix: "claude-3-7-sonnet-", rate: sonnetRate},
		{prefix: "claude-3-5-sonnet-", rate: sonnetRate},
		{prefix: "claude-3-5-haiku-", rate: haiku35Rate},
		{prefix: "claude-3-opus-", rate: opusRate},
		{prefix: "claude-3-sonnet-", rate: sonnetRate},
		{prefix: "claude-3-haiku-", rate: haiku3Rate},
	},
}

package providers

type OpenAIProvider struct{}

// Dated snapshots such as gpt-4o-2024-08-06 are priced like their base model.
var openAIPrices = priceList{
	exact: map[string]rate{
		"gpt-4o":      {input: 0.005, output: 0.015},
		"gpt-4o-mini": {input: 0.00015, output: 0.0006},
	},
	prefixes: []prefixRate{
		{prefix: "gpt-4o-mini-", rate: rate{input: 0.00015, output: 0.0006}},
		{prefix: "gpt-4o-", rate: rate{input: 0.005, output: 0.015}},
	},
}

func (OpenAIProvider) Name() string {
	return "openai"
}

func (OpenAIProvider) Hosts() []string {
	return []string{"api.openai.com"}
}

func (OpenAIProvider) ModelPrefixes() []string {
	return []string{"gpt-", "o1", "o3", "o4"}
}

// Chat Completions reports prompt/completion tokens; the Responses API
// reports input/output tokens.
var openAIUsage = usageSchema{
	input:  []string{"prompt_tokens", "input_tokens"},
	output: []string{"completion_tokens", "output_tokens"},
	total:  "total_tokens",
}

func (OpenAIProvider) ParseResponse(body any) Usage {
	return openAIUsage.parse(body)
}

func (OpenAIProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return openAIPrices.estimate(model, inputTokens, outputTokens)
}

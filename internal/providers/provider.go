// Package providers maps captured API traffic to the upstream LLM provider
// and prices token usage for index records.
package providers

// Usage is the model and token counts found in a non-streaming response.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Provider describes one upstream API. Detection uses Hosts first and
// ModelPrefixes when the trace went through a proxy or custom base URL.
type Provider interface {
	Name() string
	Hosts() []string
	ModelPrefixes() []string
	ParseResponse(body any) Usage
	// EstimateCost returns USD, or zero for unpriced models.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

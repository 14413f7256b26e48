package providers

import "testing"

func TestPriceListLookup(t *testing.T) {
	t.Parallel()

	prices := priceList{
		exact: map[string]rate{"model-a": {input: 1, output: 2}},
		prefixes: []prefixRate{
			{prefix: "model-a-mini-", rate: rate{input: 0.1, output: 0.2}},
			{prefix: "model-a-", rate: rate{input: 0.5, output: 1}},
		},
	}

	tests := []struct {
		name  string
		model string
		want  float64
		found bool
	}{
		{name: "exact", model: "model-a", want: 1, found: true},
		{name: "case and space insensitive", model: "  MODEL-A ", want: 1, found: true},
		{name: "specific prefix wins", model: "model-a-mini-2026", want: 0.1, found: true},
		{name: "general prefix", model: "model-a-2026", want: 0.5, found: true},
		{name: "unknown", model: "model-b", found: false},
		{name: "empty", model: "", found: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := prices.lookup(tt.model)
			if ok != tt.found {
				t.Fatalf("lookup(%q) found=%v, want %v", tt.model, ok, tt.found)
			}
			if ok && got.input != tt.want {
				t.Fatalf("lookup(%q) input rate=%v, want %v", tt.model, got.input, tt.want)
			}
		})
	}
}

package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"nexus/internal/services"
)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "embed", "api key required", nil)
	}
	cleaned := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if trimmed := strings.TrimSpace(input); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 || len(cleaned) != len(inputs) {
		return nil, services.Wrap(services.ErrValidation, "llm", "embed", "inputs must be non-empty", nil)
	}

	payload := embeddingRequest{Model: c.cfg.Model, Input: cleaned, Dimensions: c.dimensions}
	var vectors [][]float32
	err := c.withRetry(ctx, "llm embed", func() error {
		var resp embeddingResponse
		if _, err := c.postJSON(ctx, payload, &resp); err != nil {
			return err
		}
		if len(resp.Data) != len(cleaned) {
			return &emptyContentError{Op: "llm embed", Snippet: fmt.Sprintf("expected %d vectors, got %d", len(cleaned), len(resp.Data))}
		}
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		out := make([][]float32, len(resp.Data))
		for i, item := range resp.Data {
			if c.dimensions > 0 && len(item.Embedding) != c.dimensions {
				return services.Wrap(services.ErrExternalTool, "llm", "embed",
					fmt.Sprintf("vector %d has %d dimensions, want %d", i, len(item.Embedding), c.dimensions), nil)
			}
			out[i] = item.Embedding
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

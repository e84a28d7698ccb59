package embeddings

import "context"

// StaticClient returns the same fixed vector for every input. Tests
// use it to exercise the hybrid search path without a live endpoint.
type StaticClient struct {
	Vector []float32
}

func (s *StaticClient) Embed(ctx context.Context, inputs []string, inputType string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = s.Vector
	}
	return out, nil
}

func (s *StaticClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.Vector, nil
}

package embedding

import "context"

// DefaultBatchSize bounds how many chunks are sent to a model in one call.
const DefaultBatchSize = 32

// Model converts free text into fixed-dimension vectors.
// Implementations must embed each text independently of the others in the call.
type Model interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Factory builds a model by name.
type Factory func(name string) (Model, error)

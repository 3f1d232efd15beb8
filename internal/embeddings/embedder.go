// Package embeddings provides the text embedding collaborator behind
// the persona router's semantic intent matching.
package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder turns one piece of text into an embedding vector. The intent
// classifier embeds example phrases at seed time and inbound lead
// messages at query time, one text per call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ToChromemFunc adapts an Embedder to the function type chromem-go
// expects on its collections.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.Embed(ctx, text)
	}
}

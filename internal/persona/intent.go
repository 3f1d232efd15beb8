package persona

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/convoguard/convoguard/internal/embeddings"
)

const intentCollection = "intents"

// minIntentSimilarity is the floor below which a nearest-neighbour hit
// is treated as no classification at all.
const minIntentSimilarity = 0.72

// IntentClassifier assigns inbound messages to intent categories by
// nearest-neighbour search over embedded example phrases.
type IntentClassifier struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewIntentClassifier creates an in-memory classifier using the given
// embedder, pre-seeded with stock examples for the built-in categories.
func NewIntentClassifier(embedder embeddings.Embedder) (*IntentClassifier, error) {
	cdb := chromem.NewDB()
	col, err := cdb.GetOrCreateCollection(intentCollection, nil, embeddings.ToChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create intent collection: %w", err)
	}
	return &IntentClassifier{db: cdb, collection: col}, nil
}

// SeedDefaults loads stock example phrases for the common sales intent
// categories. Personas may add their own via AddExamples.
func (c *IntentClassifier) SeedDefaults(ctx context.Context) error {
	defaults := map[string][]string{
		"objection": {
			"I'm not sure this is right for us",
			"we already have a vendor for that",
			"I don't think we need this",
		},
		"pricing": {
			"how much does it cost",
			"what are your plans and pricing",
			"is there a discount for annual billing",
		},
		"technical": {
			"does it integrate with our existing stack",
			"what does the API look like",
			"how do you handle data residency",
		},
		"urgency": {
			"we need this live by end of quarter",
			"how fast can we get started",
			"this is blocking our launch",
		},
	}
	for intent, phrases := range defaults {
		if err := c.AddExamples(ctx, intent, phrases); err != nil {
			return err
		}
	}
	return nil
}

// AddExamples embeds and stores example phrases for an intent category.
func (c *IntentClassifier) AddExamples(ctx context.Context, intent string, phrases []string) error {
	if len(phrases) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(phrases))
	for i, phrase := range phrases {
		docs[i] = chromem.Document{
			ID:       uuid.New().String(),
			Content:  phrase,
			Metadata: map[string]string{"intent": intent},
		}
	}
	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding intent examples: %w", err)
	}
	return nil
}

// Classify returns the intent category nearest to the message, or an
// empty string when nothing is close enough to trust.
func (c *IntentClassifier) Classify(ctx context.Context, message string) (string, float32, error) {
	count := c.collection.Count()
	if count == 0 {
		return "", 0, nil
	}

	results, err := c.collection.Query(ctx, message, 1, nil, nil)
	if err != nil {
		return "", 0, fmt.Errorf("intent query: %w", err)
	}
	if len(results) == 0 {
		return "", 0, nil
	}

	top := results[0]
	if top.Similarity < minIntentSimilarity {
		return "", top.Similarity, nil
	}
	return top.Metadata["intent"], top.Similarity, nil
}

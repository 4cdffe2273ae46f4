// Package lda trains topic models and infers topic weights for new documents.
package lda

import (
	"context"

	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
)

// DefaultMinimumProbability is the weight under which inferred topics are omitted.
const DefaultMinimumProbability = 0.01

// Params configures one training run.
type Params struct {
	Topics    int
	ChunkSize int
	Passes    int
}

// Trainer fits a topic model on a training corpus.
type Trainer interface {
	Train(ctx context.Context, c *corpus.Corpus, p Params) (Artifact, error)
}

// Artifact is a trained model usable for inference and introspection.
type Artifact interface {
	// Vocabulary returns the feature names in column order.
	Vocabulary() []string
	// TopicCount returns the number of topics.
	TopicCount() int
	// InferTopics returns one weight list per corpus row, sorted by topic id.
	// Rows without known terms yield an empty list.
	InferTopics(ctx context.Context, c *corpus.Corpus) ([]domain.TopicWeights, error)
	// TopicWordWeights returns the n heaviest words of a topic, heaviest first.
	TopicWordWeights(topicID, n int) []domain.WordWeight
}

// EffectivePasses raises the default two passes to ten when the corpus fits
// in fewer than ten chunks, so small corpora still converge.
func EffectivePasses(passes, docs, chunkSize int) int {
	if passes == 2 && chunkSize > 0 && docs/chunkSize < 10 {
		return 10
	}
	return passes
}

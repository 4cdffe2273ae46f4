package lda

import (
	"context"
	"math"
	"sort"

	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

const (
	inferenceMaxIterations = 100
	inferenceTolerance     = 1e-3
)

// Model is a trained topic model: a K x V topic-word distribution over a fixed vocabulary.
type Model struct {
	vocab     []string
	topicWord *mat.Dense
	alpha     float64
	minProb   float64
}

// NewModel builds a Model from a topic-word matrix.
// Each row is normalised to sum to one; rows without mass become uniform.
func NewModel(vocab []string, topicWord mat.Matrix, alpha float64) *Model {
	k, v := topicWord.Dims()
	dense := mat.NewDense(k, v, nil)
	dense.Copy(topicWord)
	for i := 0; i < k; i++ {
		row := dense.RawRowView(i)
		sum := floats.Sum(row)
		if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
			for j := range row {
				row[j] = 1 / float64(v)
			}
			continue
		}
		floats.Scale(1/sum, row)
	}
	if alpha <= 0 {
		alpha = 1 / float64(k)
	}
	return &Model{
		vocab:     append([]string(nil), vocab...),
		topicWord: dense,
		alpha:     alpha,
		minProb:   DefaultMinimumProbability,
	}
}

// Vocabulary returns the feature names in column order.
func (m *Model) Vocabulary() []string {
	return m.vocab
}

// TopicCount returns the number of topics.
func (m *Model) TopicCount() int {
	k, _ := m.topicWord.Dims()
	return k
}

// Alpha returns the document-topic prior.
func (m *Model) Alpha() float64 {
	return m.alpha
}

// InferTopics estimates topic weights for every row of c.
// c must be an analysis corpus over this model's vocabulary.
func (m *Model) InferTopics(ctx context.Context, c *corpus.Corpus) ([]domain.TopicWeights, error) {
	out := make([]domain.TopicWeights, c.Len())
	for i, row := range c.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.inferRow(row)
	}
	return out, nil
}

// inferRow runs variational inference of the document-topic distribution
// with the topic-word matrix held fixed.
func (m *Model) inferRow(row []corpus.TermCount) domain.TopicWeights {
	k, v := m.topicWord.Dims()
	terms := make([]corpus.TermCount, 0, len(row))
	total := 0.0
	for _, tc := range row {
		if tc.Term >= 0 && tc.Term < v && tc.Count > 0 {
			terms = append(terms, tc)
			total += float64(tc.Count)
		}
	}
	if len(terms) == 0 {
		return domain.TopicWeights{}
	}

	gamma := make([]float64, k)
	for t := range gamma {
		gamma[t] = m.alpha + total/float64(k)
	}
	expTheta := make([]float64, k)
	next := make([]float64, k)

	for iter := 0; iter < inferenceMaxIterations; iter++ {
		dg := mathext.Digamma(floats.Sum(gamma))
		for t := range gamma {
			expTheta[t] = math.Exp(mathext.Digamma(gamma[t]) - dg)
		}

		for t := range next {
			next[t] = 0
		}
		for _, tc := range terms {
			norm := 1e-100
			for t := 0; t < k; t++ {
				norm += expTheta[t] * m.topicWord.At(t, tc.Term)
			}
			scale := float64(tc.Count) / norm
			for t := 0; t < k; t++ {
				next[t] += scale * m.topicWord.At(t, tc.Term)
			}
		}

		change := 0.0
		for t := range gamma {
			updated := m.alpha + expTheta[t]*next[t]
			change += math.Abs(updated - gamma[t])
			gamma[t] = updated
		}
		if change/float64(k) < inferenceTolerance {
			break
		}
	}

	sum := floats.Sum(gamma)
	weights := make(domain.TopicWeights, 0, k)
	for t, g := range gamma {
		p := g / sum
		if p >= m.minProb {
			weights = append(weights, domain.TopicWeight{TopicID: t, Weight: p})
		}
	}
	return weights
}

// TopicWordWeights returns the n heaviest words of a topic, heaviest first.
// Ties are broken alphabetically.
func (m *Model) TopicWordWeights(topicID, n int) []domain.WordWeight {
	k, v := m.topicWord.Dims()
	if topicID < 0 || topicID >= k {
		return nil
	}
	row := m.topicWord.RawRowView(topicID)
	idx := make([]int, v)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if row[idx[a]] != row[idx[b]] {
			return row[idx[a]] > row[idx[b]]
		}
		return m.vocab[idx[a]] < m.vocab[idx[b]]
	})
	if n <= 0 || n > v {
		n = v
	}
	words := make([]domain.WordWeight, n)
	for i := 0; i < n; i++ {
		words[i] = domain.WordWeight{Word: m.vocab[idx[i]], Weight: row[idx[i]]}
	}
	return words
}

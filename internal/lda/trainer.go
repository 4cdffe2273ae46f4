package lda

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/james-bowman/nlp"
	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// NLPTrainer fits models with the SCVB0 implementation of james-bowman/nlp.
type NLPTrainer struct {
	// Processes bounds the trainer's worker goroutines; zero uses GOMAXPROCS.
	Processes int
	// Alpha and Eta override the library priors when positive.
	Alpha float64
	Eta   float64
}

// NewNLPTrainer creates a trainer using every available CPU.
func NewNLPTrainer() *NLPTrainer {
	return &NLPTrainer{}
}

type trainResult struct {
	model *Model
	err   error
}

// Train fits a model on the non-empty rows of c.
// Cancelling ctx returns ctx.Err() immediately; the abandoned fit finishes in the background.
// Parameters:
//   - ctx: cancels the wait for the fit.
//   - c: training corpus.
//   - p: topic count, chunk size and passes.
// Returns:
//   - Artifact: the trained *Model.
//   - error: domain.ErrEmptyCorpus, domain.ErrTrainerFailure or a context error.
func (t *NLPTrainer) Train(ctx context.Context, c *corpus.Corpus, p Params) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Topics <= 0 {
		return nil, fmt.Errorf("%w: topic count must be positive", domain.ErrTrainerFailure)
	}

	train := c.NonEmptyRows()
	if train.Empty() || train.Len() == 0 {
		return nil, domain.ErrEmptyCorpus
	}

	lda := nlp.NewLatentDirichletAllocation(p.Topics)
	lda.Iterations = EffectivePasses(p.Passes, train.Len(), p.ChunkSize)
	lda.BatchSize = p.ChunkSize
	if lda.BatchSize <= 0 || lda.BatchSize > train.Len() {
		lda.BatchSize = train.Len()
	}
	lda.Processes = t.Processes
	if lda.Processes <= 0 {
		lda.Processes = runtime.GOMAXPROCS(0)
	}
	if t.Alpha > 0 {
		lda.Alpha = t.Alpha
	}
	if t.Eta > 0 {
		lda.Eta = t.Eta
	}

	done := make(chan trainResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- trainResult{err: fmt.Errorf("%w: %v", domain.ErrTrainerFailure, r)}
			}
		}()
		if _, err := lda.FitTransform(train.TermDocMatrix()); err != nil {
			done <- trainResult{err: fmt.Errorf("%w: %v", domain.ErrTrainerFailure, err)}
			return
		}
		components := lda.Components()
		if !finite(components) {
			done <- trainResult{err: fmt.Errorf("%w: topic-word matrix is not finite", domain.ErrTrainerFailure)}
			return
		}
		done <- trainResult{model: NewModel(train.Features, components, lda.Alpha)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.model, nil
	}
}

func finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/lda"
	"github.com/timmy/topicmodel/internal/logger"
	"github.com/timmy/topicmodel/internal/repository"
	"gonum.org/v1/gonum/floats"
)

// Similarity backends.
const (
	BackendExact  = "exact"
	BackendQdrant = "qdrant"
)

// ArtifactLoader reads trained artifacts from durable storage.
type ArtifactLoader interface {
	Load(ctx context.Context, prefix string) (lda.Artifact, error)
}

// VectorIndex mirrors topic vectors and returns neighbour candidates, best first.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, modelID string, dims int) error
	Upsert(ctx context.Context, modelID string, dims int, assignments []domain.TopicAssignment) error
	Search(ctx context.Context, modelID string, vector []float64, limit int) ([]string, error)
	DropCollection(ctx context.Context, modelID string) error
}

// SimilarityConfig holds configuration for the similarity engine.
type SimilarityConfig struct {
	Backend string
}

// Similarity assigns topics to documents and ranks documents by topic similarity.
type Similarity struct {
	registry    *Registry
	documents   *repository.DocumentRepository
	assignments *repository.AssignmentRepository
	artifacts   ArtifactLoader
	builder     *corpus.Builder
	index       VectorIndex
	backend     string

	mu    sync.RWMutex
	cache map[string]lda.Artifact
}

// NewSimilarity creates the similarity engine. index may be nil.
func NewSimilarity(
	registry *Registry,
	documents *repository.DocumentRepository,
	assignments *repository.AssignmentRepository,
	artifacts ArtifactLoader,
	builder *corpus.Builder,
	index VectorIndex,
	cfg *SimilarityConfig,
) *Similarity {
	backend := BackendExact
	if cfg != nil && cfg.Backend == BackendQdrant && index != nil {
		backend = BackendQdrant
	}
	return &Similarity{
		registry:    registry,
		documents:   documents,
		assignments: assignments,
		artifacts:   artifacts,
		builder:     builder,
		index:       index,
		backend:     backend,
		cache:       make(map[string]lda.Artifact),
	}
}

// Backend returns the neighbour candidate backend in use.
func (s *Similarity) Backend() string {
	return s.backend
}

// readyModel returns the model if it has a trained artifact.
func (s *Similarity) readyModel(ctx context.Context, modelID string) (*domain.Model, error) {
	m, err := s.registry.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.ModelStatusCompleted || m.FilesPrefix == "" {
		return nil, fmt.Errorf("%w: model %s is %s", domain.ErrModelNotReady, modelID, m.Status)
	}
	return m, nil
}

// artifact returns the cached artifact under prefix, loading it once.
func (s *Similarity) artifact(ctx context.Context, prefix string) (lda.Artifact, error) {
	s.mu.RLock()
	a, ok := s.cache[prefix]
	s.mu.RUnlock()
	if ok {
		return a, nil
	}

	a, err := s.artifacts.Load(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact: %w", err)
	}

	s.mu.Lock()
	if cached, ok := s.cache[prefix]; ok {
		a = cached
	} else {
		s.cache[prefix] = a
	}
	s.mu.Unlock()
	return a, nil
}

// Evict drops a cached artifact.
func (s *Similarity) Evict(prefix string) {
	s.mu.Lock()
	delete(s.cache, prefix)
	s.mu.Unlock()
}

// AssignTopics infers topic weights for docs under a completed model.
// A document without known terms gets an empty topic set.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - modelID: a completed model.
//   - docs: documents to analyse.
//   - persist: store new documents and replace their assignments.
// Returns:
//   - []domain.TopicAssignment: one assignment per input document, in input order.
//   - error: domain.ErrNotFound or domain.ErrModelNotReady for unusable models.
func (s *Similarity) AssignTopics(ctx context.Context, modelID string, docs []domain.Document, persist bool) ([]domain.TopicAssignment, error) {
	m, err := s.readyModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []domain.TopicAssignment{}, nil
	}
	art, err := s.artifact(ctx, m.FilesPrefix)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	c, err := s.builder.Build(texts, corpus.Options{
		Mode:       corpus.ModeAnalysis,
		Vocabulary: art.Vocabulary(),
		Language:   m.Language,
		UseLemma:   m.UseLemmer,
	})
	if err != nil {
		return nil, err
	}
	weights, err := art.InferTopics(ctx, c)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]domain.TopicAssignment, len(docs))
	for i, d := range docs {
		out[i] = domain.TopicAssignment{
			ModelID:    modelID,
			DocumentID: d.ID,
			Topics:     weights[i],
			CreatedAt:  now,
		}
	}

	if persist {
		if err := s.persist(ctx, m, art.TopicCount(), docs, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// persist stores documents and assignments, then mirrors them into the index.
// It runs under the model's registry lock so a concurrent delete sees either all or none of it.
func (s *Similarity) persist(ctx context.Context, m *domain.Model, dims int, docs []domain.Document, assignments []domain.TopicAssignment) error {
	log := logger.FromContext(ctx)
	return s.registry.WithCompleted(ctx, m.ID, func(*domain.Model) error {
		if err := s.documents.InsertMissing(ctx, docs); err != nil {
			return fmt.Errorf("failed to store documents: %w", err)
		}
		if err := s.assignments.Replace(ctx, m.ID, assignments); err != nil {
			return fmt.Errorf("failed to store assignments: %w", err)
		}
		log.WithFields(logger.Fields{
			logger.FieldModelID: m.ID,
			logger.FieldCount:   len(assignments),
		}).Info("Topic assignments stored")

		if s.index == nil {
			return nil
		}
		if err := s.index.EnsureCollection(ctx, m.ID, dims); err != nil {
			log.WithError(err).Warn("Failed to prepare topic index")
			return nil
		}
		if err := s.index.Upsert(ctx, m.ID, dims, assignments); err != nil {
			log.WithError(err).Warn("Failed to mirror assignments into topic index")
		}
		return nil
	})
}

// NeighborsOfDocument ranks the other documents of a model by similarity to a stored document.
// limit <= 0 returns every document.
func (s *Similarity) NeighborsOfDocument(ctx context.Context, modelID, documentID string, limit int) ([]domain.Neighbor, error) {
	m, err := s.readyModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	a, err := s.assignments.Get(ctx, modelID, documentID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, m, a.Topics.Dense(s.dims(m), 0), documentID, limit)
}

// NeighborsOfQuery ranks the documents of a model by similarity to free text.
// A query without known terms yields an empty ranking.
func (s *Similarity) NeighborsOfQuery(ctx context.Context, modelID, text string, limit int) ([]domain.Neighbor, error) {
	assigned, err := s.AssignTopics(ctx, modelID, []domain.Document{{Content: text}}, false)
	if err != nil {
		return nil, err
	}
	if len(assigned[0].Topics) == 0 {
		return []domain.Neighbor{}, nil
	}
	m, err := s.readyModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, m, assigned[0].Topics.Dense(s.dims(m), 0), "", limit)
}

// QueryTopics infers the topics of free text, keeping weights of at least threshold.
func (s *Similarity) QueryTopics(ctx context.Context, modelID, text string, threshold float64) (domain.TopicWeights, error) {
	assigned, err := s.AssignTopics(ctx, modelID, []domain.Document{{Content: text}}, false)
	if err != nil {
		return nil, err
	}
	return FilterByThreshold(assigned[0].Topics, threshold), nil
}

// dims returns the topic vector length of a model.
func (s *Similarity) dims(m *domain.Model) int {
	n := m.NumberOfTopics
	for _, t := range m.Topics {
		if t.ID+1 > n {
			n = t.ID + 1
		}
	}
	return n
}

// rank scores the model's documents against query and sorts them best first.
// The index only narrows the candidates when its window proves the top limit exact.
func (s *Similarity) rank(ctx context.Context, m *domain.Model, query []float64, exclude string, limit int) ([]domain.Neighbor, error) {
	if s.backend == BackendQdrant && limit > 0 && !isZeroVector(query) {
		if out, ok := s.rankFromIndex(ctx, m.ID, query, exclude, limit); ok {
			return out, nil
		}
	}

	all, err := s.assignments.ListByModel(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return score(all, query, exclude, limit), nil
}

// rankFromIndex ranks a candidate window from the index. It reports false when the window
// cannot decide the top limit: too few candidates (zero vectors are not indexed) or a tie
// across the cut, where the index's tie order differs from ours.
func (s *Similarity) rankFromIndex(ctx context.Context, modelID string, query []float64, exclude string, limit int) ([]domain.Neighbor, bool) {
	log := logger.FromContext(ctx)
	window := 2*limit + 1
	if exclude != "" {
		window++
	}
	ids, err := s.index.Search(ctx, modelID, query, window)
	if err != nil {
		log.WithError(err).Warn("Topic index search failed, falling back to exact scan")
		return nil, false
	}
	candidates, err := s.assignments.GetMany(ctx, modelID, ids)
	if err != nil {
		log.WithError(err).Warn("Failed to load index candidates, falling back to exact scan")
		return nil, false
	}

	out := score(candidates, query, exclude, 0)
	if len(out) <= limit || out[limit-1].Score == out[limit].Score {
		return nil, false
	}
	return out[:limit], true
}

// score computes the similarity of every assignment but exclude, sorted and truncated to limit.
func score(assignments []domain.TopicAssignment, query []float64, exclude string, limit int) []domain.Neighbor {
	dims := len(query)
	out := make([]domain.Neighbor, 0, len(assignments))
	for _, a := range assignments {
		if a.DocumentID == exclude {
			continue
		}
		out = append(out, domain.Neighbor{
			DocumentID: a.DocumentID,
			Score:      Cosine(query, a.Topics.Dense(dims, 0)),
		})
	}
	SortNeighbors(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either has no magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, sim))
}

// ToVector expands topic weights into a vector of length n; weights below threshold count as 0.
func ToVector(n int, topics domain.TopicWeights, threshold float64) []float64 {
	return topics.Dense(n, threshold)
}

// FilterByThreshold keeps topics weighing at least t. Weights are not renormalised.
func FilterByThreshold(topics domain.TopicWeights, t float64) domain.TopicWeights {
	return topics.Above(t)
}

// SortNeighbors orders by score descending, then document id ascending.
func SortNeighbors(n []domain.Neighbor) {
	sort.Slice(n, func(i, j int) bool {
		if n[i].Score != n[j].Score {
			return n[i].Score > n[j].Score
		}
		return n[i].DocumentID < n[j].DocumentID
	})
}

func isZeroVector(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

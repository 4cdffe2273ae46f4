package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/lda"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{0.3, 0.7}, b: []float64{0.3, 0.7}, want: 1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "scenario", a: []float64{0.6, 0.4}, b: []float64{0.5, 0.5}, want: 0.9806},
		{name: "zero left", a: []float64{0, 0}, b: []float64{0.5, 0.5}, want: 0},
		{name: "zero right", a: []float64{0.5, 0.5}, b: []float64{0, 0}, want: 0},
		{name: "length mismatch", a: []float64{1}, b: []float64{1, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-4)
			assert.Equal(t, got, Cosine(tt.b, tt.a))
		})
	}
}

func TestToVectorAndThreshold(t *testing.T) {
	topics := domain.TopicWeights{{TopicID: 0, Weight: 0.05}, {TopicID: 2, Weight: 0.6}, {TopicID: 3, Weight: 0.35}}

	assert.Equal(t, []float64{0.05, 0, 0.6, 0.35}, ToVector(4, topics, 0))
	assert.Equal(t, []float64{0, 0, 0.6, 0.35}, ToVector(4, topics, 0.1))

	thresholds := []float64{0, 0.05, 0.1, 0.35, 0.5, 0.9}
	for i := 1; i < len(thresholds); i++ {
		loose := FilterByThreshold(topics, thresholds[i-1])
		strict := FilterByThreshold(topics, thresholds[i])
		for _, tw := range strict {
			assert.Contains(t, loose, tw, "threshold %v", thresholds[i])
		}
	}
	kept := FilterByThreshold(topics, 0.3)
	assert.Equal(t, domain.TopicWeights{{TopicID: 2, Weight: 0.6}, {TopicID: 3, Weight: 0.35}}, kept)
}

func TestNeighborsOfDocumentScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")
	require.NoError(t, f.assignments.Replace(ctx, "m1", []domain.TopicAssignment{
		{DocumentID: "doc1", Topics: domain.TopicWeights{{TopicID: 0, Weight: 0.6}, {TopicID: 1, Weight: 0.4}}},
		{DocumentID: "doc2", Topics: domain.TopicWeights{{TopicID: 0, Weight: 0.5}, {TopicID: 1, Weight: 0.5}}},
	}))

	got, err := f.similarity.NeighborsOfDocument(ctx, "m1", "doc1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc2", got[0].DocumentID)
	assert.InDelta(t, 0.9806, got[0].Score, 1e-4)

	back, err := f.similarity.NeighborsOfDocument(ctx, "m1", "doc2", 0)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, got[0].Score, back[0].Score)
}

func TestNeighborsOfDocumentOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")
	require.NoError(t, f.assignments.Replace(ctx, "m1", []domain.TopicAssignment{
		{DocumentID: "q", Topics: domain.TopicWeights{{TopicID: 0, Weight: 1}}},
		{DocumentID: "c", Topics: domain.TopicWeights{{TopicID: 0, Weight: 0.9}}},
		{DocumentID: "a", Topics: domain.TopicWeights{{TopicID: 0, Weight: 0.2}}},
		{DocumentID: "b", Topics: domain.TopicWeights{{TopicID: 0, Weight: 0.5}, {TopicID: 1, Weight: 0.5}}},
		{DocumentID: "empty", Topics: domain.TopicWeights{}},
	}))

	got, err := f.similarity.NeighborsOfDocument(ctx, "m1", "q", 0)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.DocumentID
	}
	assert.Equal(t, []string{"a", "c", "b", "empty"}, ids)
	assert.Equal(t, 0.0, got[3].Score)

	limited, err := f.similarity.NeighborsOfDocument(ctx, "m1", "q", 2)
	require.NoError(t, err)
	assert.Equal(t, got[:2], limited)

	_, err = f.similarity.NeighborsOfDocument(ctx, "m1", "missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignTopicsRequiresCompletedModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.registry.Create(ctx, "pending", "", testParams(2))
	require.NoError(t, err)

	_, err = f.similarity.AssignTopics(ctx, "pending", []domain.Document{{ID: "d", Content: "apple"}}, false)
	assert.ErrorIs(t, err, domain.ErrModelNotReady)

	_, err = f.similarity.AssignTopics(ctx, "missing", nil, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignTopicsInference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")

	got, err := f.similarity.AssignTopics(ctx, "m1", []domain.Document{
		{ID: "fruit", Content: "Apple and banana, apple again."},
		{ID: "systems", Content: "The linux kernel."},
		{ID: "unknown", Content: "the of and"},
	}, false)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "fruit", got[0].DocumentID)
	require.NotEmpty(t, got[0].Topics)
	assert.Equal(t, 0, heaviest(got[0].Topics))
	assert.Equal(t, 1, heaviest(got[1].Topics))
	assert.Empty(t, got[2].Topics)

	stored, err := f.assignments.ListByModel(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAssignTopicsPersistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")
	docs := []domain.Document{
		{ID: "d1", Content: "apple banana"},
		{ID: "d2", Content: "kernel linux"},
	}

	_, err := f.similarity.AssignTopics(ctx, "m1", docs, true)
	require.NoError(t, err)
	_, err = f.similarity.AssignTopics(ctx, "m1", docs, true)
	require.NoError(t, err)

	stored, err := f.assignments.ListByModel(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	doc, err := f.documents.GetByID(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, "kernel linux", doc.Content)

	neighbors, err := f.similarity.NeighborsOfDocument(ctx, "m1", "d1", 0)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "d2", neighbors[0].DocumentID)
}

func TestNeighborsOfQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")
	_, err := f.similarity.AssignTopics(ctx, "m1", []domain.Document{
		{ID: "d1", Content: "apple banana apple"},
		{ID: "d2", Content: "kernel linux kernel"},
	}, true)
	require.NoError(t, err)

	got, err := f.similarity.NeighborsOfQuery(ctx, "m1", "bananas and apples? apple!", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].DocumentID)

	empty, err := f.similarity.NeighborsOfQuery(ctx, "m1", "zzz qqq", 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	topics, err := f.similarity.QueryTopics(ctx, "m1", "linux", 0.5)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 1, topics[0].TopicID)
}

type stubIndex struct {
	upserts  int
	ids      []string
	err      error
	searched int
}

func (s *stubIndex) EnsureCollection(context.Context, string, int) error { return nil }

func (s *stubIndex) Upsert(_ context.Context, _ string, _ int, a []domain.TopicAssignment) error {
	s.upserts += len(a)
	return nil
}

func (s *stubIndex) Search(context.Context, string, []float64, int) ([]string, error) {
	s.searched++
	return s.ids, s.err
}

func (s *stubIndex) DropCollection(context.Context, string) error { return nil }

func TestQdrantBackendRescoresCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	index := &stubIndex{ids: []string{"c", "q", "b"}}
	f.similarity = NewSimilarity(f.registry, f.documents, f.assignments, f.artifacts, f.builder, index, &SimilarityConfig{Backend: BackendQdrant})
	require.Equal(t, BackendQdrant, f.similarity.Backend())
	f.completedModel(t, "m1")

	_, err := f.similarity.AssignTopics(ctx, "m1", []domain.Document{
		{ID: "q", Content: "apple"},
		{ID: "b", Content: "apple kernel"},
		{ID: "c", Content: "banana"},
		{ID: "z", Content: "linux"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 4, index.upserts)

	got, err := f.similarity.NeighborsOfDocument(ctx, "m1", "q", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].DocumentID)
	assert.Equal(t, "b", got[1].DocumentID)
	assert.Equal(t, 1, index.searched)

	index.err = errors.New("unavailable")
	fallback, err := f.similarity.NeighborsOfDocument(ctx, "m1", "q", 3)
	require.NoError(t, err)
	assert.Len(t, fallback, 3)
}

// deletingLoader deletes the model while its artifact is being loaded.
type deletingLoader struct {
	inner    ArtifactLoader
	registry *Registry
	modelID  string
}

func (d deletingLoader) Load(ctx context.Context, prefix string) (lda.Artifact, error) {
	a, err := d.inner.Load(ctx, prefix)
	if _, delErr := d.registry.Delete(ctx, d.modelID); delErr != nil {
		return nil, delErr
	}
	return a, err
}

func TestAssignTopicsSkipsDeletedModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")
	sim := NewSimilarity(f.registry, f.documents, f.assignments,
		deletingLoader{inner: f.artifacts, registry: f.registry, modelID: "m1"}, f.builder, nil, nil)

	_, err := sim.AssignTopics(ctx, "m1", []domain.Document{{ID: "d1", Content: "apple banana"}}, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	left, err := f.assignments.ListByModel(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = f.documents.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// memIndex behaves like the Qdrant index: zero vectors are not stored and
// ties come back in descending id order.
type memIndex struct {
	vectors map[string][]float64
}

func newMemIndex() *memIndex {
	return &memIndex{vectors: make(map[string][]float64)}
}

func (m *memIndex) EnsureCollection(context.Context, string, int) error { return nil }

func (m *memIndex) Upsert(_ context.Context, _ string, dims int, a []domain.TopicAssignment) error {
	for _, as := range a {
		vec := as.Topics.Dense(dims, 0)
		if isZeroVector(vec) {
			delete(m.vectors, as.DocumentID)
			continue
		}
		m.vectors[as.DocumentID] = vec
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, _ string, query []float64, limit int) ([]string, error) {
	hits := make([]domain.Neighbor, 0, len(m.vectors))
	for id, vec := range m.vectors {
		hits = append(hits, domain.Neighbor{DocumentID: id, Score: Cosine(query, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID > hits[j].DocumentID
	})
	ids := make([]string, 0, limit)
	for i := 0; i < len(hits) && i < limit; i++ {
		ids = append(ids, hits[i].DocumentID)
	}
	return ids, nil
}

func (m *memIndex) DropCollection(context.Context, string) error { return nil }

func TestQdrantBackendMatchesExactRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedModel(t, "m1")
	index := newMemIndex()
	indexed := NewSimilarity(f.registry, f.documents, f.assignments, f.artifacts, f.builder, index, &SimilarityConfig{Backend: BackendQdrant})

	_, err := indexed.AssignTopics(ctx, "m1", []domain.Document{
		{ID: "a", Content: "apple"},
		{ID: "b", Content: "apple"},
		{ID: "c", Content: "apple"},
		{ID: "d", Content: "apple kernel"},
		{ID: "e", Content: "kernel"},
		{ID: "q", Content: "apple"},
		{ID: "z", Content: "zebra"},
	}, true)
	require.NoError(t, err)
	require.NotContains(t, index.vectors, "z")

	for _, doc := range []string{"q", "a", "d", "e"} {
		for limit := 1; limit <= 7; limit++ {
			t.Run(fmt.Sprintf("%s/%d", doc, limit), func(t *testing.T) {
				want, err := f.similarity.NeighborsOfDocument(ctx, "m1", doc, limit)
				require.NoError(t, err)
				got, err := indexed.NeighborsOfDocument(ctx, "m1", doc, limit)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			})
		}
	}

	for _, text := range []string{"apple", "kernel linux", "apple banana kernel"} {
		for limit := 1; limit <= 7; limit++ {
			want, err := f.similarity.NeighborsOfQuery(ctx, "m1", text, limit)
			require.NoError(t, err)
			got, err := indexed.NeighborsOfQuery(ctx, "m1", text, limit)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%q limit %d", text, limit)
		}
	}

	ties, err := indexed.NeighborsOfDocument(ctx, "m1", "q", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, neighborIDs(ties))
	all, err := indexed.NeighborsOfDocument(ctx, "m1", "q", 6)
	require.NoError(t, err)
	assert.Equal(t, "z", all[len(all)-1].DocumentID)
	assert.Zero(t, all[len(all)-1].Score)
}

func neighborIDs(n []domain.Neighbor) []string {
	ids := make([]string, len(n))
	for i, x := range n {
		ids[i] = x.DocumentID
	}
	return ids
}

func heaviest(w domain.TopicWeights) int {
	best, id := -1.0, -1
	for _, tw := range w {
		if tw.Weight > best {
			best, id = tw.Weight, tw.TopicID
		}
	}
	return id
}

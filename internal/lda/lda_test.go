package lda

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/textproc"
	"gonum.org/v1/gonum/mat"
)

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

func (m *memObjects) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memObjects) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func twoTopicModel() *Model {
	return NewModel(
		[]string{"apple", "banana", "engine", "wheel"},
		mat.NewDense(2, 4, []float64{
			5, 5, 0, 0,
			0, 0, 1, 3,
		}),
		0.5,
	)
}

func TestEffectivePasses(t *testing.T) {
	tests := []struct {
		passes, docs, chunk, want int
	}{
		{2, 100, 2000, 10},
		{2, 20000, 2000, 2},
		{2, 19999, 2000, 10},
		{5, 10, 2000, 5},
		{2, 10, 0, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%d", tt.passes, tt.docs, tt.chunk), func(t *testing.T) {
			assert.Equal(t, tt.want, EffectivePasses(tt.passes, tt.docs, tt.chunk))
		})
	}
}

func TestNewModelNormalisesRows(t *testing.T) {
	m := twoTopicModel()
	words := m.TopicWordWeights(1, 0)
	require.Len(t, words, 4)
	assert.Equal(t, "wheel", words[0].Word)
	assert.InDelta(t, 0.75, words[0].Weight, 1e-12)
	assert.Equal(t, "engine", words[1].Word)

	top := m.TopicWordWeights(0, 2)
	assert.Equal(t, []domain.WordWeight{{Word: "apple", Weight: 0.5}, {Word: "banana", Weight: 0.5}}, top)
	assert.Nil(t, m.TopicWordWeights(7, 3))
}

func TestInferTopics(t *testing.T) {
	m := twoTopicModel()
	c := &corpus.Corpus{
		Features: m.Vocabulary(),
		Rows: [][]corpus.TermCount{
			{{Term: 0, Count: 3}, {Term: 1, Count: 2}},
			{},
			{{Term: 3, Count: 4}},
		},
	}

	got, err := m.InferTopics(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NotEmpty(t, got[0])
	assert.Equal(t, 0, got[0][0].TopicID)
	assert.Greater(t, got[0][0].Weight, 0.9)
	total := 0.0
	for _, w := range got[0] {
		total += w.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	assert.Empty(t, got[1])

	var heaviest domain.TopicWeight
	for _, w := range got[2] {
		if w.Weight > heaviest.Weight {
			heaviest = w
		}
	}
	assert.Equal(t, 1, heaviest.TopicID)
}

func TestInferTopicsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := twoTopicModel().InferTopics(ctx, &corpus.Corpus{Features: []string{"apple"}, Rows: [][]corpus.TermCount{{}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	store := NewStore(objects)
	m := twoTopicModel()

	require.NoError(t, store.Save(ctx, "models/m1", m))
	for _, key := range Files("models/m1") {
		assert.Contains(t, objects.data, key)
	}

	loaded, err := store.Load(ctx, "models/m1")
	require.NoError(t, err)
	assert.Equal(t, m.Vocabulary(), loaded.Vocabulary())
	assert.Equal(t, 2, loaded.TopicCount())
	assert.Equal(t, m.TopicWordWeights(1, 4), loaded.TopicWordWeights(1, 4))

	c := &corpus.Corpus{Features: m.Vocabulary(), Rows: [][]corpus.TermCount{{{Term: 2, Count: 1}, {Term: 0, Count: 1}}}}
	want, _ := m.InferTopics(ctx, c)
	got, err := loaded.InferTopics(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Delete(ctx, "models/m1"))
	assert.Empty(t, objects.data)

	_, err = store.Load(ctx, "models/m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNLPTrainer(t *testing.T) {
	texts := []string{
		"engine wheel brake engine gearbox",
		"wheel brake gearbox engine tyre",
		"apple banana cherry apple fruit",
		"banana cherry fruit apple salad",
		"engine tyre wheel brake",
		"fruit salad banana cherry",
	}
	c, err := corpus.NewBuilder(textproc.New()).Build(texts, corpus.Options{
		Mode: corpus.ModeTraining, MinDocFreq: 2, MaxDocFreq: 0.8, Language: "en",
	})
	require.NoError(t, err)
	require.False(t, c.Empty())

	trainer := NewNLPTrainer()
	trainer.Processes = 1
	a, err := trainer.Train(context.Background(), c, Params{Topics: 2, ChunkSize: 2000, Passes: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, a.TopicCount())
	assert.Equal(t, c.Features, a.Vocabulary())

	for topic := 0; topic < 2; topic++ {
		total := 0.0
		for _, w := range a.TopicWordWeights(topic, 0) {
			total += w.Weight
		}
		assert.InDelta(t, 1.0, total, 1e-6)
	}
}

func TestNLPTrainerErrors(t *testing.T) {
	trainer := NewNLPTrainer()

	_, err := trainer.Train(context.Background(), &corpus.Corpus{}, Params{Topics: 2, ChunkSize: 10, Passes: 2})
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)

	emptyRows := &corpus.Corpus{Features: []string{"a"}, Rows: [][]corpus.TermCount{{}, {}}}
	_, err = trainer.Train(context.Background(), emptyRows, Params{Topics: 2, ChunkSize: 10, Passes: 2})
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)

	_, err = trainer.Train(context.Background(), emptyRows, Params{Topics: 0})
	assert.ErrorIs(t, err, domain.ErrTrainerFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Train(ctx, emptyRows, Params{Topics: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

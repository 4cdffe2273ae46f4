package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/lda"
	"github.com/timmy/topicmodel/internal/repository"
	"github.com/timmy/topicmodel/internal/storage"
	"github.com/timmy/topicmodel/internal/textproc"
	"gonum.org/v1/gonum/mat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testVocabulary splits into a fruit topic and a systems topic.
var testVocabulary = []string{"apple", "banana", "kernel", "linux"}

type fixture struct {
	registry    *Registry
	documents   *repository.DocumentRepository
	assignments *repository.AssignmentRepository
	artifacts   *lda.Store
	builder     *corpus.Builder
	similarity  *Similarity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repository.Migrate(db))

	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		registry:    NewRegistry(repository.NewModelRepository(db)),
		documents:   repository.NewDocumentRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		artifacts:   lda.NewStore(objects),
		builder:     corpus.NewBuilder(textproc.New()),
	}
	f.similarity = NewSimilarity(f.registry, f.documents, f.assignments, f.artifacts, f.builder, nil, &SimilarityConfig{Backend: BackendExact})
	return f
}

func testParams(topics int) domain.TrainingParameters {
	return domain.TrainingParameters{
		NumberOfTopics: topics,
		Language:       domain.LanguageEnglish,
		UseLemmer:      false,
		MinDF:          1,
		MaxDF:          1,
		ChunkSize:      2000,
		NumPasses:      2,
	}
}

// fixedModel is a two-topic model over testVocabulary.
func fixedModel() *lda.Model {
	return lda.NewModel(testVocabulary, mat.NewDense(2, 4, []float64{
		0.49, 0.49, 0.01, 0.01,
		0.01, 0.01, 0.49, 0.49,
	}), 0.1)
}

// completedModel registers modelID and completes it with fixedModel.
func (f *fixture) completedModel(t *testing.T, modelID string) *domain.Model {
	t.Helper()
	ctx := context.Background()
	_, err := f.registry.Create(ctx, modelID, "", testParams(2))
	require.NoError(t, err)
	_, err = f.registry.Transition(ctx, modelID, domain.ModelStatusComputing, TransitionExtra{JobID: "job"})
	require.NoError(t, err)

	prefix := domain.ArtifactPrefix(modelID)
	art := fixedModel()
	require.NoError(t, f.artifacts.Save(ctx, prefix, art))
	m, err := f.registry.Transition(ctx, modelID, domain.ModelStatusCompleted, TransitionExtra{
		FilesPrefix: prefix,
		Topics: domain.Topics{
			{ID: 0, Words: art.TopicWordWeights(0, 4)},
			{ID: 1, Words: art.TopicWordWeights(1, 4)},
		},
	})
	require.NoError(t, err)
	return m
}

// fixedTrainer returns fixedModel-shaped artifacts over the corpus features.
type fixedTrainer struct {
	calls int
}

func (f *fixedTrainer) Train(ctx context.Context, c *corpus.Corpus, p lda.Params) (lda.Artifact, error) {
	f.calls++
	if c.Empty() {
		return nil, domain.ErrEmptyCorpus
	}
	w := len(c.Features)
	data := make([]float64, p.Topics*w)
	for k := 0; k < p.Topics; k++ {
		for j := 0; j < w; j++ {
			data[k*w+j] = 1
			if j%p.Topics == k {
				data[k*w+j] = 10
			}
		}
	}
	return lda.NewModel(c.Features, mat.NewDense(p.Topics, w, data), 0.1), nil
}

// blockingTrainer waits for cancellation.
type blockingTrainer struct {
	started chan struct{}
}

func (b *blockingTrainer) Train(ctx context.Context, _ *corpus.Corpus, _ lda.Params) (lda.Artifact, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingTrainer struct{}

func (failingTrainer) Train(context.Context, *corpus.Corpus, lda.Params) (lda.Artifact, error) {
	return nil, errOutOfMemory
}

var errOutOfMemory = errors.New("out of memory")

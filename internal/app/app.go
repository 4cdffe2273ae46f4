// Package app wires the stores, engines and services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/topicmodel/internal/config"
	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/lda"
	"github.com/timmy/topicmodel/internal/logger"
	"github.com/timmy/topicmodel/internal/repository"
	"github.com/timmy/topicmodel/internal/service"
	"github.com/timmy/topicmodel/internal/storage"
	"github.com/timmy/topicmodel/internal/textproc"
	"gorm.io/gorm"
)

// App holds every long-lived component of the process.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Storage    storage.ObjectStorage
	Registry   *service.Registry
	Scheduler  *service.Scheduler
	Runner     *service.TrainingRunner
	Similarity *service.Similarity
	Models     *service.ModelService
	Topics     *service.TopicService
	Documents  *service.DocumentService

	index *repository.TopicIndex
}

// New connects to the configured stores and builds the services.
// Parameters:
//   - ctx: bounds store initialisation.
//   - cfg: loaded configuration.
// Returns:
//   - *App: ready components; call Close when done.
//   - error: non-nil if a store cannot be reached.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	objects, err := storage.NewStorage(&storage.Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
	}

	a := &App{Config: cfg, DB: db, Storage: objects}

	var index service.VectorIndex
	if cfg.Qdrant.Enabled {
		a.index, err = repository.NewTopicIndex(&repository.QdrantConnectionConfig{
			Host:             cfg.Qdrant.Host,
			Port:             cfg.Qdrant.Port,
			APIKey:           cfg.Qdrant.APIKey,
			UseTLS:           cfg.Qdrant.UseTLS,
			CollectionPrefix: cfg.Qdrant.CollectionPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize topic index: %w", err)
		}
		index = a.index
		log.WithField("host", cfg.Qdrant.Host).Info("Topic index enabled")
	}

	modelRepo := repository.NewModelRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	artifacts := lda.NewStore(objects)
	builder := corpus.NewBuilder(textproc.New())

	trainer := lda.NewNLPTrainer()
	trainer.Processes = cfg.Training.Processes

	var labeler service.TopicLabeler
	if cfg.Labeling.Enabled {
		labeler = service.NewWikipediaLabeler(&service.LabelerConfig{
			Endpoint:           cfg.Labeling.Endpoint,
			MinWordProbability: cfg.Labeling.MinWordProbability,
			MaxWords:           cfg.Labeling.MaxWords,
			TopWords:           cfg.Labeling.TopWords,
			MaxLabels:          cfg.Labeling.MaxLabels,
			Timeout:            cfg.Labeling.Timeout,
		})
	}

	a.Registry = service.NewRegistry(modelRepo)
	a.Similarity = service.NewSimilarity(a.Registry, documentRepo, assignmentRepo, artifacts, builder, index, &service.SimilarityConfig{
		Backend: cfg.Similarity.Backend,
	})
	a.Runner = service.NewTrainingRunner(a.Registry, builder, trainer, artifacts, a.Similarity, labeler, &service.TrainingConfig{
		DataPath:         cfg.Training.DataPath,
		MaxWordsPerTopic: cfg.Training.MaxWordsPerTopic,
	})
	a.Scheduler = service.NewScheduler(a.Runner)
	a.Models = service.NewModelService(a.Registry, a.Scheduler, artifacts, a.Similarity, index, &service.ModelServiceConfig{
		Defaults:     DefaultParameters(&cfg.Training),
		Delay:        time.Duration(cfg.Training.WaitingSeconds) * time.Second,
		AssignTopics: cfg.Training.AssignTopics,
	})
	a.Topics = service.NewTopicService(a.Registry, a.Similarity)
	a.Documents = service.NewDocumentService(documentRepo, assignmentRepo, a.Similarity)

	return a, nil
}

// DefaultParameters returns the training parameters applied when a request omits them.
func DefaultParameters(cfg *config.TrainingConfig) domain.TrainingParameters {
	return domain.TrainingParameters{
		Language:  cfg.Language,
		UseLemmer: cfg.UseLemmer,
		MinDF:     cfg.MinDF,
		MaxDF:     cfg.MaxDF,
		ChunkSize: cfg.ChunkSize,
		NumPasses: cfg.NumPasses,
	}
}

// Close stops running jobs and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Scheduler != nil {
		if err := a.Scheduler.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/logger"
)

// CreateModelRequest is a request to register and train a model.
// Nil optional fields take the configured defaults.
type CreateModelRequest struct {
	ModelID        string            `json:"model_id"`
	Description    string            `json:"description"`
	NumberOfTopics int               `json:"number_of_topics"`
	Language       string            `json:"language,omitempty"`
	UseLemmer      *bool             `json:"use_lemmer,omitempty"`
	MinDF          *float64          `json:"min_df,omitempty"`
	MaxDF          *float64          `json:"max_df,omitempty"`
	ChunkSize      int               `json:"chunksize,omitempty"`
	NumPasses      int               `json:"num_passes,omitempty"`
	AssignTopics   *bool             `json:"assign_topics,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	DataFilename   string            `json:"data_filename,omitempty"`
	DataEndpoint   string            `json:"data_endpoint,omitempty"`
}

// ModelServiceConfig holds the defaults applied to creation requests.
type ModelServiceConfig struct {
	Defaults     domain.TrainingParameters
	Delay        time.Duration
	AssignTopics bool
	// CancelWait bounds how long Delete waits for an interrupted job to exit.
	CancelWait time.Duration
}

// ModelService drives the model lifecycle across the registry, the scheduler and the stores.
type ModelService struct {
	registry   *Registry
	scheduler  *Scheduler
	artifacts  ArtifactStore
	similarity *Similarity
	index      VectorIndex
	cfg        ModelServiceConfig
}

// NewModelService creates a ModelService. index may be nil.
func NewModelService(
	registry *Registry,
	scheduler *Scheduler,
	artifacts ArtifactStore,
	similarity *Similarity,
	index VectorIndex,
	cfg *ModelServiceConfig,
) *ModelService {
	s := &ModelService{
		registry:   registry,
		scheduler:  scheduler,
		artifacts:  artifacts,
		similarity: similarity,
		index:      index,
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	if s.cfg.CancelWait <= 0 {
		s.cfg.CancelWait = 30 * time.Second
	}
	return s
}

// BuildJob validates req and turns it into training parameters and a job.
func (s *ModelService) BuildJob(req *CreateModelRequest) (domain.TrainingJob, error) {
	if req.ModelID == "" {
		return domain.TrainingJob{}, fmt.Errorf("%w: model_id is required", domain.ErrInvalidInput)
	}
	if req.DataEndpoint != "" {
		return domain.TrainingJob{}, fmt.Errorf("%w: data_endpoint", domain.ErrNotImplemented)
	}
	hasInline := req.Data != nil
	if hasInline == (req.DataFilename != "") {
		return domain.TrainingJob{}, fmt.Errorf("%w: exactly one of data and data_filename is required", domain.ErrInvalidInput)
	}

	p := s.cfg.Defaults
	p.NumberOfTopics = req.NumberOfTopics
	if req.Language != "" {
		p.Language = req.Language
	}
	if req.UseLemmer != nil {
		p.UseLemmer = *req.UseLemmer
	}
	if req.MinDF != nil {
		p.MinDF = *req.MinDF
	}
	if req.MaxDF != nil {
		p.MaxDF = *req.MaxDF
	}
	if req.ChunkSize != 0 {
		p.ChunkSize = req.ChunkSize
	}
	if req.NumPasses != 0 {
		p.NumPasses = req.NumPasses
	}
	if err := p.Validate(); err != nil {
		return domain.TrainingJob{}, err
	}

	job := domain.TrainingJob{
		ModelID:      req.ModelID,
		Params:       p,
		Delay:        s.cfg.Delay,
		DataFilename: req.DataFilename,
		AssignTopics: s.cfg.AssignTopics,
	}
	if req.AssignTopics != nil {
		job.AssignTopics = *req.AssignTopics
	}
	if hasInline {
		job.Documents = make([]domain.Document, 0, len(req.Data))
		for id, content := range req.Data {
			job.Documents = append(job.Documents, domain.Document{ID: id, Content: content})
		}
	}
	return job, nil
}

// Create registers a model and schedules its training.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: creation request.
// Returns:
//   - *domain.Model: the scheduled model.
//   - error: domain.ErrInvalidInput, domain.ErrNotImplemented or domain.ErrAlreadyExists.
func (s *ModelService) Create(ctx context.Context, req *CreateModelRequest) (*domain.Model, error) {
	job, err := s.BuildJob(req)
	if err != nil {
		return nil, err
	}

	m, err := s.registry.Create(ctx, req.ModelID, req.Description, job.Params)
	if err != nil {
		return nil, err
	}

	if _, err := s.scheduler.Schedule(ctx, job); err != nil {
		if _, delErr := s.registry.Delete(context.WithoutCancel(ctx), req.ModelID); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).Warn("Failed to roll back model registration")
		}
		return nil, fmt.Errorf("failed to schedule training: %w", err)
	}
	return m, nil
}

// Get returns a model by id.
func (s *ModelService) Get(ctx context.Context, modelID string) (*domain.Model, error) {
	return s.registry.Get(ctx, modelID)
}

// List returns every model.
func (s *ModelService) List(ctx context.Context) ([]domain.Model, error) {
	return s.registry.List(ctx)
}

// UpdateDescription replaces a model's description.
func (s *ModelService) UpdateDescription(ctx context.Context, modelID, description string) (*domain.Model, error) {
	return s.registry.UpdateDescription(ctx, modelID, description)
}

// Delete interrupts the model's job if it has one, then removes its files, index and rows.
func (s *ModelService) Delete(ctx context.Context, modelID string) error {
	m, err := s.registry.Get(ctx, modelID)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx).WithField(logger.FieldModelID, modelID)

	// A completed model may still have a live job persisting its assignments.
	if s.scheduler.Cancel(modelID) {
		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.CancelWait)
		err := s.scheduler.Wait(waitCtx, modelID)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Training job did not stop in time")
		}
		if m, err = s.registry.Get(ctx, modelID); err != nil {
			return err
		}
	}

	if m.FilesPrefix != "" {
		if err := s.artifacts.Delete(ctx, m.FilesPrefix); err != nil {
			return fmt.Errorf("failed to delete model files: %w", err)
		}
		s.similarity.Evict(m.FilesPrefix)
	}
	if _, err := s.registry.Delete(ctx, modelID); err != nil {
		return err
	}

	// Dropped after the row so a late writer cannot recreate the collection.
	if s.index != nil {
		if err := s.index.DropCollection(ctx, modelID); err != nil {
			log.WithError(err).Warn("Failed to drop topic index collection")
		}
	}
	return nil
}

// ReportInterrupted logs models left scheduled or computing without a live job,
// typically after a restart. Deleting them is the recovery path.
func (s *ModelService) ReportInterrupted(ctx context.Context) error {
	models, err := s.registry.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if s.scheduler.Active(m.ID) {
			continue
		}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldModelID: m.ID,
			logger.FieldStatus:  m.Status,
		}).Warn("Model has no live training job")
	}
	return nil
}

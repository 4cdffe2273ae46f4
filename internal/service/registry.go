package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/logger"
	"github.com/timmy/topicmodel/internal/repository"
)

// TransitionExtra carries the fields a status change may update.
type TransitionExtra struct {
	JobID             string
	FilesPrefix       string
	Topics            domain.Topics
	TrainingDocuments int
	LastError         string
}

// Registry is the authoritative record of every model and its lifecycle status.
type Registry struct {
	models *repository.ModelRepository
	locks  *keyedMutex
	now    func() time.Time
}

// NewRegistry creates a Registry backed by the model repository.
func NewRegistry(models *repository.ModelRepository) *Registry {
	return &Registry{
		models: models,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new model in the scheduled status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - modelID: caller-chosen unique id.
//   - description: free text.
//   - params: validated training parameters.
// Returns:
//   - *domain.Model: the stored record.
//   - error: domain.ErrAlreadyExists if the id is taken.
func (r *Registry) Create(ctx context.Context, modelID, description string, params domain.TrainingParameters) (*domain.Model, error) {
	if modelID == "" {
		return nil, fmt.Errorf("%w: model_id is required", domain.ErrInvalidInput)
	}
	unlock := r.locks.Lock(modelID)
	defer unlock()

	now := r.now()
	m := &domain.Model{
		ID:                 modelID,
		Description:        description,
		TrainingParameters: params,
		Status:             domain.ModelStatusScheduled,
		CreatedAt:          now,
		ModifiedAt:         now,
	}
	if err := r.models.Create(ctx, m); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldModelID: modelID,
		logger.FieldStatus:  m.Status,
	}).Info("Model registered")
	return m, nil
}

// Transition moves a model to status, applying the fields that status owns.
// Entering completed or error releases the job id.
func (r *Registry) Transition(ctx context.Context, modelID string, status domain.ModelStatus, extra TransitionExtra) (*domain.Model, error) {
	unlock := r.locks.Lock(modelID)
	defer unlock()

	m, err := r.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(m.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, m.Status, status)
	}

	switch status {
	case domain.ModelStatusComputing:
		m.JobID = extra.JobID
	case domain.ModelStatusCompleted:
		m.JobID = ""
		m.FilesPrefix = extra.FilesPrefix
		m.Topics = extra.Topics
		m.TrainingDocuments = extra.TrainingDocuments
		m.LastError = ""
	case domain.ModelStatusError:
		m.JobID = ""
		m.LastError = extra.LastError
	}
	m.Status = status
	m.ModifiedAt = r.now()

	if err := r.models.Update(ctx, m); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldModelID: modelID,
		logger.FieldStatus:  status,
	}).Info("Model status changed")
	return m, nil
}

// Get returns a model by id.
func (r *Registry) Get(ctx context.Context, modelID string) (*domain.Model, error) {
	return r.models.GetByID(ctx, modelID)
}

// List returns every registered model.
func (r *Registry) List(ctx context.Context) ([]domain.Model, error) {
	return r.models.List(ctx)
}

// ListActive returns the models a training job may still own.
func (r *Registry) ListActive(ctx context.Context) ([]domain.Model, error) {
	return r.models.ListByStatus(ctx, domain.ModelStatusScheduled, domain.ModelStatusComputing)
}

// UpdateDescription replaces the free-text description of a model.
func (r *Registry) UpdateDescription(ctx context.Context, modelID, description string) (*domain.Model, error) {
	unlock := r.locks.Lock(modelID)
	defer unlock()

	m, err := r.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, err
	}
	m.Description = description
	m.ModifiedAt = r.now()
	if err := r.models.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateTopic edits the label and description of one topic.
// Empty arguments leave the corresponding field unchanged.
func (r *Registry) UpdateTopic(ctx context.Context, modelID string, topicID int, label, description string) (*domain.Topic, error) {
	if label == "" && description == "" {
		return nil, fmt.Errorf("%w: label or description is required", domain.ErrInvalidInput)
	}
	unlock := r.locks.Lock(modelID)
	defer unlock()

	m, err := r.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.ModelStatusCompleted {
		return nil, fmt.Errorf("%w: model %s is %s", domain.ErrModelNotReady, modelID, m.Status)
	}
	t, ok := m.Topic(topicID)
	if !ok {
		return nil, fmt.Errorf("%w: topic %d of model %s", domain.ErrNotFound, topicID, modelID)
	}
	if label != "" {
		t.Label = label
	}
	if description != "" {
		t.Description = description
	}
	m.ModifiedAt = r.now()
	if err := r.models.Update(ctx, m); err != nil {
		return nil, err
	}
	out := *t
	return &out, nil
}

// WithCompleted runs fn while holding the model's lock, provided the model exists and is completed.
// A concurrent Delete cannot remove the model while fn runs.
func (r *Registry) WithCompleted(ctx context.Context, modelID string, fn func(*domain.Model) error) error {
	unlock := r.locks.Lock(modelID)
	defer unlock()

	m, err := r.models.GetByID(ctx, modelID)
	if err != nil {
		return err
	}
	if m.Status != domain.ModelStatusCompleted {
		return fmt.Errorf("%w: model %s is %s", domain.ErrModelNotReady, modelID, m.Status)
	}
	return fn(m)
}

// Delete removes a model and all its assignments, returning the last snapshot.
func (r *Registry) Delete(ctx context.Context, modelID string) (*domain.Model, error) {
	unlock := r.locks.Lock(modelID)
	defer unlock()

	m, err := r.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if err := r.models.DeleteWithAssignments(ctx, modelID); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithField(logger.FieldModelID, modelID).Info("Model deleted")
	return m, nil
}

// keyedMutex serialises work per key. Entries are dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

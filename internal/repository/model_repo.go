package repository

import (
	"context"
	"fmt"

	"github.com/timmy/topicmodel/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelRepository stores model registry rows.
type ModelRepository struct {
	db *gorm.DB
}

// NewModelRepository creates a new ModelRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ModelRepository: repository instance bound to db.
func NewModelRepository(db *gorm.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// Create inserts a model row unless its id is already taken.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - model: model record to persist.
// Returns:
//   - error: domain.ErrAlreadyExists for a duplicate id, or the insert failure.
func (r *ModelRepository) Create(ctx context.Context, model *domain.Model) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("model %q: %w", model.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// Update saves every column of an existing model.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - model: model record with updated fields.
// Returns:
//   - error: domain.ErrNotFound if the row is gone, or the update failure.
func (r *ModelRepository) Update(ctx context.Context, model *domain.Model) error {
	result := r.db.WithContext(ctx).Model(&domain.Model{}).
		Where("id = ?", model.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("model %q: %w", model.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a model by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: model ID.
// Returns:
//   - *domain.Model: model record if found.
//   - error: domain.ErrNotFound if missing.
func (r *ModelRepository) GetByID(ctx context.Context, id string) (*domain.Model, error) {
	var model domain.Model
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "model", id)
	}
	return &model, nil
}

// List returns every model ordered by creation time.
func (r *ModelRepository) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// ListByStatus returns the models currently in one of the given statuses.
func (r *ModelRepository) ListByStatus(ctx context.Context, statuses ...domain.ModelStatus) ([]domain.Model, error) {
	var models []domain.Model
	if err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// DeleteWithAssignments removes a model row and all of its topic assignments in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: model ID.
// Returns:
//   - error: domain.ErrNotFound if the model row did not exist.
func (r *ModelRepository) DeleteWithAssignments(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("model_id = ?", id).Delete(&domain.TopicAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete assignments: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&domain.Model{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete model: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("model %q: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

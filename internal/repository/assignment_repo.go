package repository

import (
	"context"
	"fmt"

	"github.com/timmy/topicmodel/internal/domain"
	"gorm.io/gorm"
)

// AssignmentRepository stores per-document topic assignments, scoped by model id.
type AssignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Replace stores assignments for a model, replacing every previous assignment
// of the same document ids in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - modelID: owning model.
//   - assignments: full topic sets, one per document.
// Returns:
//   - error: non-nil if the transaction fails.
func (r *AssignmentRepository) Replace(ctx context.Context, modelID string, assignments []domain.TopicAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	byDoc := make(map[string]domain.TopicAssignment, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := byDoc[a.DocumentID]; !ok {
			ids = append(ids, a.DocumentID)
		}
		a.ModelID = modelID
		byDoc[a.DocumentID] = a
	}
	rows := make([]domain.TopicAssignment, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, byDoc[id])
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += insertBatchSize {
			end := min(start+insertBatchSize, len(ids))
			if err := tx.Where("model_id = ? AND document_id IN ?", modelID, ids[start:end]).
				Delete(&domain.TopicAssignment{}).Error; err != nil {
				return fmt.Errorf("failed to clear assignments: %w", err)
			}
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert assignments: %w", err)
		}
		return nil
	})
}

// Get retrieves the assignment of one document under a model.
func (r *AssignmentRepository) Get(ctx context.Context, modelID, documentID string) (*domain.TopicAssignment, error) {
	var a domain.TopicAssignment
	err := r.db.WithContext(ctx).First(&a, "model_id = ? AND document_id = ?", modelID, documentID).Error
	if err != nil {
		return nil, notFound(err, "assignment", modelID+"/"+documentID)
	}
	return &a, nil
}

// GetMany returns the assignments of the given documents under a model, ordered by document id.
// Unknown ids are skipped.
func (r *AssignmentRepository) GetMany(ctx context.Context, modelID string, documentIDs []string) ([]domain.TopicAssignment, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var out []domain.TopicAssignment
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND document_id IN ?", modelID, documentIDs).
		Order("document_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByModel returns every assignment of a model ordered by document id.
func (r *AssignmentRepository) ListByModel(ctx context.Context, modelID string) ([]domain.TopicAssignment, error) {
	var out []domain.TopicAssignment
	if err := r.db.WithContext(ctx).Where("model_id = ?", modelID).Order("document_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListDocumentIDs returns the ids of documents assigned under a model.
func (r *AssignmentRepository) ListDocumentIDs(ctx context.Context, modelID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.TopicAssignment{}).
		Where("model_id = ?", modelID).
		Order("document_id ASC").
		Pluck("document_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByModel removes every assignment of a model.
func (r *AssignmentRepository) DeleteByModel(ctx context.Context, modelID string) error {
	return r.db.WithContext(ctx).Where("model_id = ?", modelID).Delete(&domain.TopicAssignment{}).Error
}

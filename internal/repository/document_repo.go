package repository

import (
	"context"

	"github.com/timmy/topicmodel/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

// DocumentRepository stores raw documents shared by all models.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// InsertMissing stores the documents whose ids are not present yet.
// Existing rows are left untouched even when the content differs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docs: documents to store.
// Returns:
//   - error: non-nil if the insert fails.
func (r *DocumentRepository) InsertMissing(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).CreateInBatches(dedupeDocuments(docs), insertBatchSize).Error
}

// GetByID retrieves a document by its ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &doc, nil
}

// GetByIDs retrieves the documents with the given ids, in id order.
func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []domain.Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// dedupeDocuments keeps the first occurrence of every id within one batch.
func dedupeDocuments(docs []domain.Document) []domain.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

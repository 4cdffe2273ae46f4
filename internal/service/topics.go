package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/repository"
)

// TopicService exposes the topic catalogue of completed models.
type TopicService struct {
	registry   *Registry
	similarity *Similarity
}

// NewTopicService creates a TopicService.
func NewTopicService(registry *Registry, similarity *Similarity) *TopicService {
	return &TopicService{registry: registry, similarity: similarity}
}

// List returns every topic of a model.
func (s *TopicService) List(ctx context.Context, modelID string) (domain.Topics, error) {
	m, err := s.similarity.readyModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return m.Topics, nil
}

// Get returns one topic with its words sorted heaviest first.
func (s *TopicService) Get(ctx context.Context, modelID string, topicID int) (*domain.Topic, error) {
	m, err := s.similarity.readyModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	t, ok := m.Topic(topicID)
	if !ok {
		return nil, fmt.Errorf("%w: topic %d of model %s", domain.ErrNotFound, topicID, modelID)
	}
	out := *t
	out.Words = append([]domain.WordWeight(nil), t.Words...)
	sort.SliceStable(out.Words, func(i, j int) bool {
		return out.Words[i].Weight > out.Words[j].Weight
	})
	return &out, nil
}

// Update sets the label and/or description of a topic.
func (s *TopicService) Update(ctx context.Context, modelID string, topicID int, label, description string) (*domain.Topic, error) {
	return s.registry.UpdateTopic(ctx, modelID, topicID, label, description)
}

// Query infers the topics of free text under a model.
func (s *TopicService) Query(ctx context.Context, modelID, text string, threshold float64) (domain.TopicWeights, error) {
	return s.similarity.QueryTopics(ctx, modelID, text, threshold)
}

// DocumentTopics is a stored document with its topics under one model.
type DocumentTopics struct {
	DocumentID string              `json:"document_id"`
	Content    string              `json:"content"`
	Topics     domain.TopicWeights `json:"topics"`
}

// DocumentService exposes the documents assigned under a model.
type DocumentService struct {
	documents   *repository.DocumentRepository
	assignments *repository.AssignmentRepository
	similarity  *Similarity
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(
	documents *repository.DocumentRepository,
	assignments *repository.AssignmentRepository,
	similarity *Similarity,
) *DocumentService {
	return &DocumentService{
		documents:   documents,
		assignments: assignments,
		similarity:  similarity,
	}
}

// List returns the ids of the documents assigned under a model.
func (s *DocumentService) List(ctx context.Context, modelID string) ([]string, error) {
	if _, err := s.similarity.readyModel(ctx, modelID); err != nil {
		return nil, err
	}
	ids, err := s.assignments.ListDocumentIDs(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Get returns a document with its topics weighing at least threshold.
func (s *DocumentService) Get(ctx context.Context, modelID, documentID string, threshold float64) (*DocumentTopics, error) {
	if _, err := s.similarity.readyModel(ctx, modelID); err != nil {
		return nil, err
	}
	a, err := s.assignments.Get(ctx, modelID, documentID)
	if err != nil {
		return nil, err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentTopics{
		DocumentID: documentID,
		Content:    doc.Content,
		Topics:     FilterByThreshold(a.Topics, threshold),
	}, nil
}

// Assign infers and stores the topics of submitted documents.
func (s *DocumentService) Assign(ctx context.Context, modelID string, docs map[string]string) ([]domain.TopicAssignment, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", domain.ErrInvalidInput)
	}
	list := make([]domain.Document, 0, len(docs))
	for id, content := range docs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty document id", domain.ErrInvalidInput)
		}
		list = append(list, domain.Document{ID: id, Content: content})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return s.similarity.AssignTopics(ctx, modelID, list, true)
}

// Neighbors ranks the documents of a model against a stored document.
func (s *DocumentService) Neighbors(ctx context.Context, modelID, documentID string, limit int) ([]domain.Neighbor, error) {
	return s.similarity.NeighborsOfDocument(ctx, modelID, documentID, limit)
}

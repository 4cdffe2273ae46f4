package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/timmy/topicmodel/internal/corpus"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/lda"
	"github.com/timmy/topicmodel/internal/logger"
)

// ArtifactStore persists and removes trained artifacts.
type ArtifactStore interface {
	ArtifactLoader
	Save(ctx context.Context, prefix string, a lda.Artifact) error
	Delete(ctx context.Context, prefix string) error
}

// TopicLabeler proposes human-readable labels for a topic from its words.
type TopicLabeler interface {
	Label(ctx context.Context, words []domain.WordWeight) ([]string, error)
}

// TrainingConfig holds configuration for the training runner.
type TrainingConfig struct {
	DataPath         string
	MaxWordsPerTopic int
}

// TrainingRunner is the body of a training job.
type TrainingRunner struct {
	registry   *Registry
	builder    *corpus.Builder
	trainer    lda.Trainer
	artifacts  ArtifactStore
	similarity *Similarity
	labeler    TopicLabeler
	cfg        TrainingConfig
}

// NewTrainingRunner creates a runner. labeler may be nil.
func NewTrainingRunner(
	registry *Registry,
	builder *corpus.Builder,
	trainer lda.Trainer,
	artifacts ArtifactStore,
	similarity *Similarity,
	labeler TopicLabeler,
	cfg *TrainingConfig,
) *TrainingRunner {
	r := &TrainingRunner{
		registry:   registry,
		builder:    builder,
		trainer:    trainer,
		artifacts:  artifacts,
		similarity: similarity,
		labeler:    labeler,
	}
	if cfg != nil {
		r.cfg = *cfg
	}
	if r.cfg.MaxWordsPerTopic <= 0 {
		r.cfg.MaxWordsPerTopic = 30
	}
	return r
}

// Run trains the job's model and records the outcome in the registry.
// Corpus and trainer failures end in the error status; cancellation leaves the status untouched.
func (r *TrainingRunner) Run(ctx context.Context, job domain.TrainingJob, handle string) error {
	log := logger.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := r.registry.Transition(ctx, job.ModelID, domain.ModelStatusComputing, TransitionExtra{JobID: handle}); err != nil {
		return fmt.Errorf("failed to start training: %w", err)
	}

	docs, err := r.resolveDocuments(job)
	if err != nil {
		return r.fail(ctx, job.ModelID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	c, err := r.builder.Build(texts, corpus.Options{
		Mode:       corpus.ModeTraining,
		MinDocFreq: job.Params.MinDF,
		MaxDocFreq: job.Params.MaxDF,
		Language:   job.Params.Language,
		UseLemma:   job.Params.UseLemmer,
	})
	if err != nil {
		return r.fail(ctx, job.ModelID, err)
	}
	if c.Empty() {
		return r.fail(ctx, job.ModelID, fmt.Errorf("%w: no term survived min_df=%v max_df=%v over %d documents",
			domain.ErrEmptyCorpus, job.Params.MinDF, job.Params.MaxDF, len(docs)))
	}
	log.WithFields(logger.Fields{
		logger.FieldCount: len(docs),
		"vocabulary":      len(c.Features),
	}).Info("Training corpus built")

	artifact, err := r.trainer.Train(ctx, c, lda.Params{
		Topics:    job.Params.NumberOfTopics,
		ChunkSize: job.Params.ChunkSize,
		Passes:    job.Params.NumPasses,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, domain.ErrEmptyCorpus) && !errors.Is(err, domain.ErrTrainerFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrTrainerFailure, err)
		}
		return r.fail(ctx, job.ModelID, err)
	}
	log.WithFields(logger.Fields{
		logger.FieldTopics:     artifact.TopicCount(),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Model trained")

	prefix := domain.ArtifactPrefix(job.ModelID)
	if err := r.artifacts.Save(ctx, prefix, artifact); err != nil {
		r.discard(ctx, prefix)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.fail(ctx, job.ModelID, fmt.Errorf("failed to save model artifact: %w", err))
	}
	r.similarity.Evict(prefix)

	topics := r.describeTopics(ctx, artifact)
	if err := ctx.Err(); err != nil {
		r.discard(ctx, prefix)
		return err
	}

	_, err = r.registry.Transition(ctx, job.ModelID, domain.ModelStatusCompleted, TransitionExtra{
		FilesPrefix:       prefix,
		Topics:            topics,
		TrainingDocuments: len(docs),
	})
	if err != nil {
		// The model was deleted or moved on while training.
		r.discard(ctx, prefix)
		return fmt.Errorf("failed to complete training: %w", err)
	}

	if !job.AssignTopics {
		return nil
	}
	if _, err := r.similarity.AssignTopics(ctx, job.ModelID, docs, true); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Error("Failed to assign topics to training documents")
		return fmt.Errorf("failed to assign topics: %w", err)
	}
	return nil
}

// Fail moves a model to the error status with err as diagnostic.
func (r *TrainingRunner) Fail(ctx context.Context, modelID string, err error) {
	m, getErr := r.registry.Get(ctx, modelID)
	if getErr != nil {
		return
	}
	if m.Status == domain.ModelStatusScheduled {
		if _, tErr := r.registry.Transition(ctx, modelID, domain.ModelStatusComputing, TransitionExtra{}); tErr != nil {
			return
		}
	}
	_ = r.fail(ctx, modelID, err)
}

func (r *TrainingRunner) fail(ctx context.Context, modelID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	logger.FromContext(ctx).WithError(cause).Error("Training failed")
	if _, err := r.registry.Transition(ctx, modelID, domain.ModelStatusError, TransitionExtra{LastError: cause.Error()}); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record training failure")
	}
	return cause
}

// discard removes an artifact nothing references.
func (r *TrainingRunner) discard(ctx context.Context, prefix string) {
	if err := r.artifacts.Delete(context.WithoutCancel(ctx), prefix); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("prefix", prefix).Warn("Failed to delete orphaned artifact")
	}
}

// describeTopics lists the top words of every topic and labels them when a labeler is set.
func (r *TrainingRunner) describeTopics(ctx context.Context, a lda.Artifact) domain.Topics {
	topics := make(domain.Topics, a.TopicCount())
	for t := range topics {
		topics[t] = domain.Topic{
			ID:    t,
			Words: a.TopicWordWeights(t, r.cfg.MaxWordsPerTopic),
		}
		if r.labeler == nil || ctx.Err() != nil {
			continue
		}
		labels, err := r.labeler.Label(ctx, topics[t].Words)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("topic_id", t).Warn("Failed to label topic")
			continue
		}
		if len(labels) > 0 {
			topics[t].Label = labels[0]
			topics[t].Description = strings.Join(labels[1:], ", ")
		}
	}
	return topics
}

// resolveDocuments returns the job's input sorted by document id.
func (r *TrainingRunner) resolveDocuments(job domain.TrainingJob) ([]domain.Document, error) {
	var docs []domain.Document
	switch {
	case job.HasInlineData() && job.DataFilename != "":
		return nil, fmt.Errorf("%w: both inline data and data_filename given", domain.ErrInvalidInput)
	case job.HasInlineData():
		docs = append(docs, job.Documents...)
	case job.DataFilename != "":
		var err error
		docs, err = ReadDocumentsFile(r.cfg.DataPath, job.DataFilename)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: no input documents", domain.ErrInvalidInput)
	}
	return dedupeSorted(docs), nil
}

// dedupeSorted keeps the last document of every id and orders by id.
func dedupeSorted(docs []domain.Document) []domain.Document {
	byID := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]domain.Document, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var trailingComma = regexp.MustCompile(`,\s*\]\s*$`)

// documentRecord accepts both the id/content and doc_id/doc_content spellings.
type documentRecord struct {
	ID         flexibleID `json:"id"`
	DocID      flexibleID `json:"doc_id"`
	Content    string     `json:"content"`
	DocContent string     `json:"doc_content"`
}

// flexibleID decodes a JSON string or number into its text form.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// ReadDocumentsFile reads a JSON array of documents from dir/name.
// name must stay inside dir. A trailing comma before the closing bracket is tolerated.
func ReadDocumentsFile(dir, name string) ([]domain.Document, error) {
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: data_filename %q escapes the data directory", domain.ErrInvalidInput, name)
	}
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return ParseDocuments(raw)
}

// ParseDocuments decodes a JSON array of {id|doc_id, content|doc_content} records.
func ParseDocuments(raw []byte) ([]domain.Document, error) {
	raw = trailingComma.ReplaceAll(bytes.TrimSpace(raw), []byte("]"))

	var records []documentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: malformed documents file: %v", domain.ErrInvalidInput, err)
	}

	docs := make([]domain.Document, 0, len(records))
	for i, rec := range records {
		id := string(rec.ID)
		if id == "" {
			id = string(rec.DocID)
		}
		if id == "" {
			return nil, fmt.Errorf("%w: document %d has no id", domain.ErrInvalidInput, i)
		}
		content := rec.Content
		if content == "" {
			content = rec.DocContent
		}
		docs = append(docs, domain.Document{ID: id, Content: content})
	}
	return docs, nil
}

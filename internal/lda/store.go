package lda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Side file suffixes of a saved model. The bare prefix holds the header.
const (
	SuffixVocabulary = ".id2word"
	SuffixState      = ".state"

	formatVersion = 1
)

// ObjectStore is the subset of object storage the artifact codec needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type header struct {
	FormatVersion int       `json:"format_version"`
	Topics        int       `json:"topics"`
	Vocabulary    int       `json:"vocabulary_size"`
	Alpha         float64   `json:"alpha"`
	SavedAt       time.Time `json:"saved_at"`
}

// Store persists trained models as a set of objects sharing one prefix.
type Store struct {
	objects ObjectStore
}

// NewStore creates a Store on top of an object storage backend.
func NewStore(objects ObjectStore) *Store {
	return &Store{objects: objects}
}

// Files lists every object key belonging to prefix.
func Files(prefix string) []string {
	return []string{prefix, prefix + SuffixVocabulary, prefix + SuffixState}
}

// Save writes a to storage under prefix.
// The header is written last so a readable header implies complete side files.
func (s *Store) Save(ctx context.Context, prefix string, a Artifact) error {
	m, ok := a.(*Model)
	if !ok {
		return fmt.Errorf("unsupported artifact type %T", a)
	}

	vocab, err := json.Marshal(m.vocab)
	if err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}
	state, err := m.topicWord.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode model state: %w", err)
	}
	head, err := json.Marshal(header{
		FormatVersion: formatVersion,
		Topics:        m.TopicCount(),
		Vocabulary:    len(m.vocab),
		Alpha:         m.alpha,
		SavedAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode model header: %w", err)
	}

	writes := []struct {
		key         string
		data        []byte
		contentType string
	}{
		{prefix + SuffixVocabulary, vocab, "application/json"},
		{prefix + SuffixState, state, "application/octet-stream"},
		{prefix, head, "application/json"},
	}
	for _, w := range writes {
		if err := s.objects.Upload(ctx, w.key, bytes.NewReader(w.data), int64(len(w.data)), w.contentType); err != nil {
			return fmt.Errorf("failed to write %s: %w", w.key, err)
		}
	}
	return nil
}

// Load reads the model stored under prefix.
func (s *Store) Load(ctx context.Context, prefix string) (Artifact, error) {
	var h header
	if err := s.readJSON(ctx, prefix, &h); err != nil {
		return nil, err
	}
	if h.FormatVersion != formatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", h.FormatVersion)
	}

	var vocab []string
	if err := s.readJSON(ctx, prefix+SuffixVocabulary, &vocab); err != nil {
		return nil, err
	}

	state, err := s.read(ctx, prefix+SuffixState)
	if err != nil {
		return nil, err
	}
	var topicWord mat.Dense
	if err := topicWord.UnmarshalBinary(state); err != nil {
		return nil, fmt.Errorf("failed to decode model state: %w", err)
	}

	k, v := topicWord.Dims()
	if k != h.Topics || v != len(vocab) || v != h.Vocabulary {
		return nil, fmt.Errorf("model %s is inconsistent: state %dx%d, header %dx%d, vocabulary %d",
			prefix, k, v, h.Topics, h.Vocabulary, len(vocab))
	}

	return &Model{vocab: vocab, topicWord: &topicWord, alpha: h.Alpha, minProb: DefaultMinimumProbability}, nil
}

// Delete removes every file of the model under prefix.
// All deletions are attempted; the joined errors are returned.
func (s *Store) Delete(ctx context.Context, prefix string) error {
	var errs []error
	for _, key := range Files(prefix) {
		if err := s.objects.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.objects.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) readJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

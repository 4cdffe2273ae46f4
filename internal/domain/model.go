package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModelStatus represents the lifecycle status of a topic model.
// Values include ModelStatusScheduled, ModelStatusComputing, ModelStatusCompleted, and ModelStatusError.
type ModelStatus string

const (
	ModelStatusScheduled ModelStatus = "scheduled"
	ModelStatusComputing ModelStatus = "computing"
	ModelStatusCompleted ModelStatus = "completed"
	ModelStatusError     ModelStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s ModelStatus) Valid() bool {
	switch s {
	case ModelStatusScheduled, ModelStatusComputing, ModelStatusCompleted, ModelStatusError:
		return true
	}
	return false
}

// Terminal reports whether no job can move the model out of s.
func (s ModelStatus) Terminal() bool {
	return s == ModelStatusCompleted || s == ModelStatusError
}

// Active reports whether a training job may still own the model.
func (s ModelStatus) Active() bool {
	return s == ModelStatusScheduled || s == ModelStatusComputing
}

// CanTransition reports whether a model may move from one status to another.
// A transition to the same status is always allowed.
// Parameters:
//   - from: current status.
//   - to: requested status.
// Returns:
//   - bool: true when the edge exists in the lifecycle.
func CanTransition(from, to ModelStatus) bool {
	if from == to {
		return from.Valid()
	}
	switch from {
	case ModelStatusScheduled:
		return to == ModelStatusComputing
	case ModelStatusComputing:
		return to == ModelStatusCompleted || to == ModelStatusError
	}
	return false
}

// Supported corpus languages.
const (
	LanguageEnglish = "en"
	LanguageItalian = "it"
)

// TrainingParameters holds the preprocessing and training knobs of a model.
type TrainingParameters struct {
	NumberOfTopics int     `gorm:"not null" json:"number_of_topics"`
	Language       string  `gorm:"type:text;default:en" json:"language"`
	UseLemmer      bool    `json:"use_lemmer"`
	MinDF          float64 `json:"min_df"`
	MaxDF          float64 `json:"max_df"`
	ChunkSize      int     `json:"chunksize"`
	NumPasses      int     `json:"num_passes"`
}

// Validate checks the parameters before a model is registered.
func (p TrainingParameters) Validate() error {
	if p.NumberOfTopics <= 0 {
		return fmt.Errorf("%w: number_of_topics must be positive", ErrInvalidInput)
	}
	if p.Language != LanguageEnglish && p.Language != LanguageItalian {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, p.Language)
	}
	if p.MinDF < 0 || p.MaxDF <= 0 {
		return fmt.Errorf("%w: document frequency bounds must be positive", ErrInvalidInput)
	}
	if p.ChunkSize <= 0 || p.NumPasses <= 0 {
		return fmt.Errorf("%w: chunksize and num_passes must be positive", ErrInvalidInput)
	}
	return nil
}

// WordWeight is one entry of a topic's word distribution.
type WordWeight struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// Topic describes a single latent topic of a trained model.
type Topic struct {
	ID          int          `json:"topic_id"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Words       []WordWeight `json:"words"`
}

// Topics is stored as a JSON column.
type Topics []Topic

// Value implements the driver.Valuer interface for database serialization.
func (t Topics) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (t *Topics) Scan(value interface{}) error {
	return scanJSON(value, t, "Topics")
}

// Model is the registry record of a topic model.
type Model struct {
	ID          string `gorm:"type:text;primaryKey" json:"model_id"`
	Description string `gorm:"type:text" json:"description"`
	TrainingParameters
	Status            ModelStatus `gorm:"type:text;index:idx_models_status;not null" json:"status"`
	JobID             string      `gorm:"type:text" json:"-"`
	FilesPrefix       string      `gorm:"type:text" json:"-"`
	TrainingDocuments int         `json:"training_documents"`
	Topics            Topics      `gorm:"type:text" json:"topics,omitempty"`
	LastError         string      `gorm:"type:text" json:"-"`
	CreatedAt         time.Time   `json:"date_created"`
	ModifiedAt        time.Time   `json:"date_modified"`
}

// TableName returns the database table name for Model.
func (Model) TableName() string {
	return "models"
}

// Topic returns the topic with the given id.
func (m *Model) Topic(topicID int) (*Topic, bool) {
	for i := range m.Topics {
		if m.Topics[i].ID == topicID {
			return &m.Topics[i], true
		}
	}
	return nil, false
}

// artifactNamespace scopes artifact key hashes.
var artifactNamespace = uuid.MustParse("8f5a3c0e-2b7d-4c1a-9e64-3d2f1b0a7c55")

// ArtifactPrefix derives the storage prefix of a model's trained artifact.
// The readable part is sanitised; the hash suffix keeps distinct ids from colliding after sanitising.
func ArtifactPrefix(modelID string) string {
	var b strings.Builder
	for _, r := range modelID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) > 64 {
		name = name[:64]
	}
	hash := uuid.NewSHA1(artifactNamespace, []byte(modelID)).String()[:8]
	return "models/" + name + "-" + hash
}

func scanJSON(value interface{}, dst interface{}, name string) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan " + name)
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}

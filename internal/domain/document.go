package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Document is a raw text shared by every model.
// A document id that already exists is never rewritten.
type Document struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string {
	return "documents"
}

// TopicWeight is the weight of one topic in a document.
type TopicWeight struct {
	TopicID int     `json:"topic_id"`
	Weight  float64 `json:"weight"`
}

// TopicWeights is an ordered set of topic weights stored as a JSON column.
type TopicWeights []TopicWeight

// Value implements the driver.Valuer interface for database serialization.
func (w TopicWeights) Value() (driver.Value, error) {
	if w == nil {
		return "[]", nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (w *TopicWeights) Scan(value interface{}) error {
	return scanJSON(value, w, "TopicWeights")
}

// Above returns the weights greater than or equal to threshold.
// Remaining weights are not renormalised.
func (w TopicWeights) Above(threshold float64) TopicWeights {
	out := make(TopicWeights, 0, len(w))
	for _, tw := range w {
		if tw.Weight >= threshold {
			out = append(out, tw)
		}
	}
	return out
}

// Dense expands the weights into a vector of length n indexed by topic id.
// Topics that are absent, out of range, or below threshold stay 0.
func (w TopicWeights) Dense(n int, threshold float64) []float64 {
	vec := make([]float64, n)
	for _, tw := range w {
		if tw.TopicID < 0 || tw.TopicID >= n || tw.Weight < threshold {
			continue
		}
		vec[tw.TopicID] = tw.Weight
	}
	return vec
}

// TopicAssignment holds the topic weights of one document under one model.
type TopicAssignment struct {
	ModelID    string       `gorm:"type:text;primaryKey;index:idx_assignments_model" json:"model_id"`
	DocumentID string       `gorm:"type:text;primaryKey" json:"document_id"`
	Topics     TopicWeights `gorm:"type:text" json:"topics"`
	CreatedAt  time.Time    `json:"created_at"`
}

// TableName returns the database table name for TopicAssignment.
func (TopicAssignment) TableName() string {
	return "topic_assignments"
}

// Neighbor is one entry of a similarity ranking.
type Neighbor struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

package domain

import "time"

// TrainingJob describes the work a scheduler runs for one model.
// It lives only for the delay-plus-training duration and is never persisted.
type TrainingJob struct {
	ModelID      string
	Params       TrainingParameters
	Delay        time.Duration
	Documents    []Document // inline input, mutually exclusive with DataFilename
	DataFilename string
	AssignTopics bool
}

// HasInlineData reports whether the job carries its documents inline.
func (j *TrainingJob) HasInlineData() bool {
	return j.Documents != nil
}

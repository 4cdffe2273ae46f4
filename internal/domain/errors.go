package domain

import "errors"

// Domain errors returned by the registry, the scheduler and the similarity engine.
var (
	// ErrNotFound indicates a requested model, document or topic does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a model id is already registered.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed request parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a status change outside the model lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyCorpus indicates the frequency filters removed every term.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrTrainerFailure wraps any failure of the topic trainer.
	ErrTrainerFailure = errors.New("trainer failure")

	// ErrModelNotReady indicates the model has no trained artifact yet.
	ErrModelNotReady = errors.New("model not ready")

	// ErrJobExists indicates a live job already owns the model id.
	ErrJobExists = errors.New("job already scheduled")

	// ErrNotImplemented indicates a request option the service does not support.
	ErrNotImplemented = errors.New("not implemented")
)

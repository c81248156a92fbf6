package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the persisted processing state of a compression job.
type Status string

const (
	StatusPendingUpload Status = "PENDING_UPLOAD"
	StatusQueued        Status = "QUEUED"
	StatusProcessing    Status = "PROCESSING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusCancelled     Status = "CANCELLED"
)

// Valid status transitions:
// PENDING_UPLOAD -> QUEUED -> PROCESSING -> COMPLETED
//        |            |                \-> FAILED
//        |            |                 \-> CANCELLED
//         \-----------+-> CANCELLED
var validTransitions = map[Status][]Status{
	StatusPendingUpload: {StatusQueued, StatusCancelled},
	StatusQueued:        {StatusProcessing, StatusCancelled},
	StatusProcessing:    {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:     {},
	StatusFailed:        {},
	StatusCancelled:     {},
}

func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, status := range validTransitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Job is a compression request tracked across the API and the worker.
type Job struct {
	ID                 uuid.UUID
	SourceKey          string
	OutputKey          string
	Tier               QualityTier
	Codec              Codec
	Options            Options
	CustomWidth        int
	CustomHeight       int
	CustomBitrate      int
	CustomAudioBitrate int
	Status             Status
	Attempts           int
	Progress           float64
	FailureKind        ErrorKind
	FailureReason      string
	Result             *CompressionResult
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

var (
	ErrEmptyFileName     = errors.New("file name cannot be empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrFileNameTooLong   = errors.New("file name exceeds maximum length of 255 characters")
)

const maxFileNameLength = 255

// JobSpec carries the caller-chosen parameters of a new job.
type JobSpec struct {
	FileName           string
	Tier               QualityTier
	Codec              Codec
	Options            Options
	CustomWidth        int
	CustomHeight       int
	CustomBitrate      int
	CustomAudioBitrate int
}

// NewJob creates a new Job with PENDING_UPLOAD status.
func NewJob(spec JobSpec) (*Job, error) {
	if spec.FileName == "" {
		return nil, ErrEmptyFileName
	}
	if len(spec.FileName) > maxFileNameLength {
		return nil, ErrFileNameTooLong
	}
	if !spec.Tier.IsValid() {
		return nil, ErrUnknownQualityTier
	}
	if spec.Codec == "" {
		spec.Codec = CodecH264
	}
	if !spec.Codec.IsValid() {
		return nil, ErrUnknownCodec
	}

	id := uuid.New()
	now := time.Now()
	return &Job{
		ID:                 id,
		SourceKey:          "sources/" + id.String() + "/" + spec.FileName,
		OutputKey:          "outputs/" + id.String() + "/" + spec.FileName,
		Tier:               spec.Tier,
		Codec:              spec.Codec,
		Options:            spec.Options,
		CustomWidth:        spec.CustomWidth,
		CustomHeight:       spec.CustomHeight,
		CustomBitrate:      spec.CustomBitrate,
		CustomAudioBitrate: spec.CustomAudioBitrate,
		Status:             StatusPendingUpload,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// TransitionTo attempts to change the job status.
// Returns error if the transition is not allowed.
func (j *Job) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !j.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	j.Status = next
	j.UpdatedAt = time.Now()
	return nil
}

// Complete records a successful result and moves the job to COMPLETED.
func (j *Job) Complete(result *CompressionResult) error {
	if err := j.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	j.Result = result
	j.Attempts = result.Attempts
	j.Progress = 1
	return nil
}

// Fail records a terminal failure. Cancellations move the job to CANCELLED.
func (j *Job) Fail(kind ErrorKind, reason string) error {
	next := StatusFailed
	if kind == KindCancelled {
		next = StatusCancelled
	}
	if err := j.TransitionTo(next); err != nil {
		return err
	}
	j.FailureKind = kind
	j.FailureReason = reason
	return nil
}

func (j *Job) IsCompleted() bool {
	return j.Status == StatusCompleted
}

func (j *Job) IsFailed() bool {
	return j.Status == StatusFailed
}

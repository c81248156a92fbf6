package transcoder

import (
	"context"
	"fmt"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// Code classifies why an encode failed.
type Code string

const (
	CodeCapacity    Code = "capacity"
	CodeInit        Code = "init"
	CodeFormat      Code = "format"
	CodeUnsupported Code = "unsupported"
	CodeNotFound    Code = "not_found"
	CodeCancelled   Code = "cancelled"
	CodeUnknown     Code = "unknown"
)

// Error is an encoder failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("encoder %s: %s", e.Code, e.Message)
}

// EventType distinguishes encoder events.
type EventType int

const (
	EventProgress EventType = iota
	EventCompleted
	EventFailed
)

// Event is emitted by a running encode. A Handle emits zero or more
// progress events followed by exactly one completed or failed event, then
// closes its channel.
type Event struct {
	Type EventType
	// Progress is the encoder-reported completion in [0, 1].
	Progress float64
	// Err is set on EventFailed.
	Err *Error
}

// Handle controls a running encode.
type Handle interface {
	Events() <-chan Event
	// Cancel aborts the encode. The events channel is still closed.
	Cancel()
}

// Encoder runs one encode attempt per Submit.
type Encoder interface {
	// Submit starts encoding source into outputPath according to the
	// attempt's plan. Errors returned here mean the encode never started.
	//
	// The output directory must exist before calling this method.
	Submit(ctx context.Context, attempt model.Attempt, source model.SourceVideo, outputPath string) (Handle, error)
}

// Prober reads source metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (model.SourceVideo, error)
}

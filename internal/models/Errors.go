package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingEndpoint = errors.New("endpoint url is not configured")
	ErrMissingAPIKey   = errors.New("api key is not configured")
	ErrSampleNotFound  = errors.New("sample not found")
)

type ErrorKind int

const (
	// KindConfiguration cannot be fixed by retrying; it needs user reconfiguration.
	KindConfiguration ErrorKind = iota + 1
	KindCollection
	KindNetwork
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindCollection:
		return "collection"
	case KindNetwork:
		return "network"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewPipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s %s error: %s", e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Retryable() bool {
	return e.Kind == KindCollection || e.Kind == KindNetwork
}

func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	// OutcomeSuspend stops periodic runs until the job is resumed.
	OutcomeSuspend
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeSuspend:
		return "suspend"
	default:
		return "failure"
	}
}

// Classify maps a run error onto the outcome reported to the scheduler.
// Errors without a kind are retried.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if kind, ok := KindOf(err); ok {
		switch kind {
		case KindConfiguration:
			return OutcomeSuspend
		case KindStorage:
			return OutcomeFailure
		default:
			return OutcomeRetry
		}
	}
	return OutcomeRetry
}

// IsCancellation reports whether err came from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

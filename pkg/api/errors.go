package api

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// SubscriberError records one subscriber handler's failure during a
	// dispatch
	SubscriberError struct {
		Err  error `json:"-"`
		Step Name  `json:"step"`
	}

	// PartialDispatchError reports that at least one subscriber handler
	// failed while the others ran to completion. It enumerates exactly
	// the failing subscribers
	PartialDispatchError struct {
		Topic    Topic             `json:"topic"`
		TraceID  TraceID           `json:"trace_id"`
		Failures []SubscriberError `json:"failures"`
	}
)

var (
	ErrStepExists        = errors.New("step already registered")
	ErrInvalidStep       = errors.New("invalid step descriptor")
	ErrRegistryFrozen    = errors.New("registry frozen")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrEmitDepthExceeded = errors.New("emit depth exceeded")
)

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *SubscriberError) Unwrap() error {
	return e.Err
}

func (e *PartialDispatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("partial dispatch of %s: %s",
		e.Topic, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual subscriber failures to errors.Is and
// errors.As
func (e *PartialDispatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i := range e.Failures {
		errs[i] = &e.Failures[i]
	}
	return errs
}

// FailedSteps returns the names of the subscribers that failed, in
// registration order
func (e *PartialDispatchError) FailedSteps() []Name {
	names := make([]Name, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Step
	}
	return names
}

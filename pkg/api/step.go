package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/loomworks/loom/pkg/util"
)

type (
	// TriggerKind identifies how a step's handler is invoked
	TriggerKind string

	// Name uniquely identifies a step within a registry
	Name string

	// FlowLabel groups steps for visualization. It has no effect on
	// dispatch
	FlowLabel string

	// Step describes a registered unit of logic: its trigger, the topics
	// it subscribes to and emits, and the flows it belongs to. Steps are
	// registered once at startup and immutable afterward
	Step struct {
		Handler    Handler     `json:"-"`
		NewInput   func() any  `json:"-"`
		Name       Name        `json:"name"`
		Kind       TriggerKind `json:"kind"`
		Path       string      `json:"path,omitempty"`
		Method     string      `json:"method,omitempty"`
		Cron       string      `json:"cron,omitempty"`
		Subscribes []Topic     `json:"subscribes,omitempty"`
		Emits      []Topic     `json:"emits,omitempty"`
		Flows      []FlowLabel `json:"flows,omitempty"`
	}

	// Handler is the single invocation contract for all trigger kinds.
	// The returned Response is only meaningful for API steps; other kinds
	// ignore it
	Handler func(
		ctx context.Context, input json.RawMessage, ec *Context,
	) (*Response, error)

	// Response maps a handler's return value onto an HTTP response
	Response struct {
		Body   any `json:"body,omitempty"`
		Status int `json:"status"`
	}

	// ErrorResponse is the standard error payload for the HTTP surface
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
)

const (
	TriggerEvent TriggerKind = "event"
	TriggerAPI   TriggerKind = "api"
	TriggerCron  TriggerKind = "cron"
	TriggerNoop  TriggerKind = "noop"
)

var (
	ErrStepNameEmpty        = errors.New("step name empty")
	ErrInvalidTriggerKind   = errors.New("invalid trigger kind")
	ErrHandlerRequired      = errors.New("handler required")
	ErrHandlerNotAllowed    = errors.New("noop step cannot carry a handler")
	ErrSubscribesRequired   = errors.New("event step must subscribe to a topic")
	ErrSubscribesNotAllowed = errors.New(
		"subscriptions not allowed for trigger kind",
	)
	ErrPathRequired     = errors.New("api step path empty")
	ErrInvalidMethod    = errors.New("invalid api step method")
	ErrCronExprRequired = errors.New("cron step expression empty")
	ErrTopicEmpty       = errors.New("topic empty")
)

var (
	validTriggerKinds = util.SetOf(
		TriggerEvent,
		TriggerAPI,
		TriggerCron,
		TriggerNoop,
	)

	validMethods = util.SetOf(
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	)
)

// Validate checks the kind-specific shape rules for a step descriptor
func (s *Step) Validate() error {
	if s.Name == "" {
		return ErrStepNameEmpty
	}
	if !validTriggerKinds.Contains(s.Kind) {
		return fmt.Errorf("%w: %s", ErrInvalidTriggerKind, s.Kind)
	}

	if err := validateTopics(s.Subscribes); err != nil {
		return err
	}
	if err := validateTopics(s.Emits); err != nil {
		return err
	}

	switch s.Kind {
	case TriggerEvent:
		if len(s.Subscribes) == 0 {
			return ErrSubscribesRequired
		}
		if s.Handler == nil {
			return ErrHandlerRequired
		}
	case TriggerAPI:
		if len(s.Subscribes) > 0 {
			return fmt.Errorf("%w: %s", ErrSubscribesNotAllowed, s.Kind)
		}
		if s.Path == "" {
			return ErrPathRequired
		}
		if !validMethods.Contains(s.Method) {
			return fmt.Errorf("%w: %q", ErrInvalidMethod, s.Method)
		}
		if s.Handler == nil {
			return ErrHandlerRequired
		}
	case TriggerCron:
		if len(s.Subscribes) > 0 {
			return fmt.Errorf("%w: %s", ErrSubscribesNotAllowed, s.Kind)
		}
		if s.Cron == "" {
			return ErrCronExprRequired
		}
		if s.Handler == nil {
			return ErrHandlerRequired
		}
	case TriggerNoop:
		if s.Handler != nil {
			return ErrHandlerNotAllowed
		}
	}
	return nil
}

func validateTopics(topics []Topic) error {
	for _, t := range topics {
		if t == "" {
			return ErrTopicEmpty
		}
	}
	return nil
}

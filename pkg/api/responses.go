package api

type (
	// HealthResponse is the liveness payload for the HTTP surface
	HealthResponse struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Steps   int    `json:"steps"`
	}

	// StepListResponse lists the frozen registry's step descriptors
	StepListResponse struct {
		Steps []*Step `json:"steps"`
		Count int     `json:"count"`
	}

	// FlowView is one flow's membership and internal topic edges, built
	// for external visualizers
	FlowView struct {
		Name  FlowLabel  `json:"name"`
		Steps []Name     `json:"steps"`
		Edges []FlowEdge `json:"edges,omitempty"`
	}

	// FlowEdge connects an emitting step to a subscribing step via the
	// topic between them
	FlowEdge struct {
		From  Name  `json:"from"`
		To    Name  `json:"to"`
		Topic Topic `json:"topic"`
	}

	// FlowListResponse lists every declared flow
	FlowListResponse struct {
		Flows []*FlowView `json:"flows"`
		Count int         `json:"count"`
	}

	// TopicView is one topic's declared subscribers and emitters
	TopicView struct {
		Topic       Topic  `json:"topic"`
		Subscribers []Name `json:"subscribers,omitempty"`
		Emitters    []Name `json:"emitters,omitempty"`
	}

	// TopicListResponse lists every topic referenced by the registry
	TopicListResponse struct {
		Topics []*TopicView `json:"topics"`
		Count  int          `json:"count"`
	}

	// TriggerResponse is the default body for an API trigger whose handler
	// returned no explicit response
	TriggerResponse struct {
		TraceID TraceID `json:"trace_id"`
		Status  int     `json:"status"`
	}

	// ValidationErrorResponse carries field-level input validation failures
	ValidationErrorResponse struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields,omitempty"`
		Status int               `json:"status"`
	}
)

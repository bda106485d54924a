package engine

import (
	"fmt"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/util"
)

type (
	// Registry accumulates step descriptors during startup. BuildIndex
	// freezes it; registration afterward fails with ErrRegistryFrozen
	Registry struct {
		index  *Index
		names  util.Set[api.Name]
		routes util.Set[routeKey]
		steps  []*api.Step
	}

	// Index is the immutable topic and trigger lookup structure built
	// from a registry. It is safe for unsynchronized concurrent reads
	Index struct {
		byName   map[api.Name]*api.Step
		byTopic  map[api.Topic][]*api.Step
		emitters map[api.Topic][]*api.Step
		byRoute  map[routeKey]*api.Step
		steps    []*api.Step
		crons    []*api.Step
	}

	routeKey struct {
		method string
		path   string
	}
)

// ErrRouteExists reports two API steps claiming the same method and path
var ErrRouteExists = fmt.Errorf("%w: route already claimed", api.ErrInvalidStep)

// NewRegistry creates an empty, unfrozen registry
func NewRegistry() *Registry {
	return &Registry{
		names:  util.Set[api.Name]{},
		routes: util.Set[routeKey]{},
	}
}

// Register adds a step descriptor. It fails for duplicate names, routes,
// or descriptors whose shape is invalid for their trigger kind
func (r *Registry) Register(step *api.Step) error {
	if r.index != nil {
		return fmt.Errorf("%w: %s", api.ErrRegistryFrozen, step.Name)
	}
	if err := step.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", api.ErrInvalidStep, step.Name, err)
	}
	if r.names.Contains(step.Name) {
		return fmt.Errorf("%w: %s", api.ErrStepExists, step.Name)
	}

	if step.Kind == api.TriggerAPI {
		key := routeKey{method: step.Method, path: step.Path}
		if r.routes.Contains(key) {
			return fmt.Errorf("%w: %s %s %s",
				ErrRouteExists, step.Name, step.Method, step.Path)
		}
		r.routes.Add(key)
	}

	r.names.Add(step.Name)
	r.steps = append(r.steps, step)
	return nil
}

// BuildIndex freezes the registry into its immutable lookup structure.
// Subscriber ordering follows registration order. Calling it again
// returns the same index
func (r *Registry) BuildIndex() *Index {
	if r.index != nil {
		return r.index
	}

	idx := &Index{
		steps:    r.steps,
		byName:   make(map[api.Name]*api.Step, len(r.steps)),
		byTopic:  map[api.Topic][]*api.Step{},
		emitters: map[api.Topic][]*api.Step{},
		byRoute:  map[routeKey]*api.Step{},
	}

	for _, step := range r.steps {
		idx.byName[step.Name] = step
		for _, topic := range step.Subscribes {
			idx.byTopic[topic] = append(idx.byTopic[topic], step)
		}
		for _, topic := range step.Emits {
			idx.emitters[topic] = append(idx.emitters[topic], step)
		}

		switch step.Kind {
		case api.TriggerAPI:
			key := routeKey{method: step.Method, path: step.Path}
			idx.byRoute[key] = step
		case api.TriggerCron:
			idx.crons = append(idx.crons, step)
		}
	}

	r.index = idx
	return idx
}

// Steps returns all registered steps in registration order
func (idx *Index) Steps() []*api.Step {
	return idx.steps
}

// Step looks up a step by name
func (idx *Index) Step(name api.Name) (*api.Step, bool) {
	step, ok := idx.byName[name]
	return step, ok
}

// Subscribers returns the steps subscribed to a topic in registration
// order. Unknown topics yield an empty result; that is not an error
func (idx *Index) Subscribers(topic api.Topic) []*api.Step {
	return idx.byTopic[topic]
}

// Emitters returns the steps that declare emitting a topic. The
// declaration is informational; it is not enforced at dispatch
func (idx *Index) Emitters(topic api.Topic) []*api.Step {
	return idx.emitters[topic]
}

// FindRoute resolves the API step registered for a method and path
func (idx *Index) FindRoute(method, path string) (*api.Step, bool) {
	step, ok := idx.byRoute[routeKey{method: method, path: path}]
	return step, ok
}

// CronSteps returns the cron-triggered steps in registration order
func (idx *Index) CronSteps() []*api.Step {
	return idx.crons
}

// Topics returns every topic referenced by a subscription or emission
func (idx *Index) Topics() []api.Topic {
	seen := util.Set[api.Topic]{}
	var topics []api.Topic
	collect := func(names []api.Topic) {
		for _, topic := range names {
			if !seen.Contains(topic) {
				seen.Add(topic)
				topics = append(topics, topic)
			}
		}
	}
	for _, step := range idx.steps {
		collect(step.Subscribes)
		collect(step.Emits)
	}
	return topics
}

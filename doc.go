// Package loom provides an embeddable event-driven workflow runtime.
//
// Applications declare steps: named units of logic triggered by an HTTP
// route, a cron schedule, or events published on topics. Steps
// communicate exclusively through topics; a step never calls another
// step. The runtime wires the declarations into a dispatch graph at
// startup and drives it at runtime.
//
// # Steps and Topics
//
// A Step couples a trigger with a Handler. Event steps subscribe to one
// or more topics and run whenever a matching event is published. API
// steps claim an HTTP method and path and run per request. Cron steps
// run on a schedule. Noop steps carry no handler at all; they exist so
// a flow graph can name external systems.
//
// Handlers emit follow-up events through their Context. An emit call
// returns only after every downstream subscriber, and everything those
// subscribers emit in turn, has finished. Entry points therefore
// observe a fully settled cascade.
//
// # Traces and State
//
// Every entry invocation mints a trace identifier that rides along the
// whole cascade. The runtime's State store is scoped key-value storage;
// handlers conventionally use the trace identifier as the scope so one
// request's working data never collides with another's. Memory, local
// file, cloud blob, and Redis backends are interchangeable behind the
// same interface.
//
// # Flows
//
// Flow labels group steps for visualization and introspection. Labels
// have no effect on dispatch; the HTTP surface exposes the resulting
// graph for external tooling.
package loom

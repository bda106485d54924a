// Package server implements the HTTP surface of the runtime
//
// This package serves the routes declared by API trigger steps, plus
// introspection endpoints, state inspection, and a WebSocket stream of
// dispatch records
package server

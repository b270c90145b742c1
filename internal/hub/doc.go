// Package hub implements the core WebSocket messaging hub for PulseHub.
//
// The implementation is organized into specialized files for configuration,
// client lifecycle, room and presence management, batching, replay, broker
// fan-out, and HTTP handlers to keep the codebase maintainable and testable
// as the project grows.
package hub

// Package transport connects runs to their event sources. It defines the
// Opener factory contract consumed by UI layers and provides a WebSocket
// implementation that dials the chat backend, decodes wire frames into
// protocol events, folds them into the run handle and reports terminal events
// through the registry.
//
// A transport owns the goroutine reading its event source. The subscription
// it wires into each handle tears that goroutine down on disposal; teardown
// never calls back into the registry, so a superseded run's replacement can
// await disposal safely.
package transport

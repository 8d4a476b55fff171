// Package events decouples transports from the dispatch engine. A transport
// turns a client request into a TaskRequestEvent and emits it; handlers
// registered on the emitter turn events into queued tasks.
package events

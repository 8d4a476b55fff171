package task

import (
	"log/slog"
	"sync"
)

// InstanceCache keeps at most one live handler per (user, event) pair so
// handlers can hold per-user state across tasks.
type InstanceCache struct {
	mu        sync.Mutex
	instances map[string]map[string]Handler
	logger    *slog.Logger
}

// NewInstanceCache creates an empty cache.
func NewInstanceCache(logger *slog.Logger) *InstanceCache {
	return &InstanceCache{
		instances: make(map[string]map[string]Handler),
		logger:    logger.With("component", "instance_cache"),
	}
}

// GetOrCreate returns the cached handler for (userID, event), constructing
// it with factory on first use. The factory runs under the cache lock, so
// it must not call back into the cache.
func (c *InstanceCache) GetOrCreate(userID, event string, factory Factory, sink Sink) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()

	byEvent, ok := c.instances[userID]
	if !ok {
		byEvent = make(map[string]Handler)
		c.instances[userID] = byEvent
	}
	if h, ok := byEvent[event]; ok {
		return h
	}

	h := factory(sink)
	byEvent[event] = h
	c.logger.Debug("handler instance created", "user_id", userID, "event", event)
	return h
}

// Get returns the cached handler for (userID, event) without creating one.
func (c *InstanceCache) Get(userID, event string) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.instances[userID][event]
	return h, ok
}

// Reset evicts the handler for (userID, event). The next task for the pair
// gets a newly constructed instance. It reports whether anything was evicted.
func (c *InstanceCache) Reset(userID, event string) bool {
	c.mu.Lock()
	h, ok := c.instances[userID][event]
	if ok {
		delete(c.instances[userID], event)
		if len(c.instances[userID]) == 0 {
			delete(c.instances, userID)
		}
	}
	c.mu.Unlock()

	if ok {
		c.close(userID, event, h)
		c.logger.Info("handler instance reset", "user_id", userID, "event", event)
	}
	return ok
}

// ResetUser evicts every handler owned by userID and returns how many were
// evicted.
func (c *InstanceCache) ResetUser(userID string) int {
	c.mu.Lock()
	byEvent := c.instances[userID]
	delete(c.instances, userID)
	c.mu.Unlock()

	for event, h := range byEvent {
		c.close(userID, event, h)
	}
	if len(byEvent) > 0 {
		c.logger.Info("user handler instances reset", "user_id", userID, "count", len(byEvent))
	}
	return len(byEvent)
}

// Len returns the number of cached handlers across all users.
func (c *InstanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byEvent := range c.instances {
		n += len(byEvent)
	}
	return n
}

func (c *InstanceCache) close(userID, event string, h Handler) {
	closer, ok := h.(Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		c.logger.Warn("failed to close evicted handler",
			"user_id", userID,
			"event", event,
			"error", err)
	}
}

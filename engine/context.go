package engine

import "sync"

// Context is a per-path key->value scratchpad carried across actions
// within a single Agent, snapshotted with each State and restored on
// rollback. Never shared across concurrent branches: each parallel Agent
// owns its own Context instance.
type Context struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{data: make(map[string]interface{})}
}

// Get returns the value for k, or def if absent.
func (c *Context) Get(k string, def interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.data[k]; ok {
		return v
	}
	return def
}

// Set stores v under k.
func (c *Context) Set(k string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[k] = v
}

// Has reports whether k is present.
func (c *Context) Has(k string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[k]
	return ok
}

// Snapshot returns a shallow copy of the current contents, suitable for
// attaching to a State.
func (c *Context) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Restore replaces the current contents with snap. Used when the Agent
// rolls the World back to a prior State.
func (c *Context) Restore(snap map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]interface{}, len(snap))
	for k, v := range snap {
		c.data[k] = v
	}
}

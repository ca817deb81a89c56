package discovery

import (
	"sync"
)

// Collector gathers SSDP responses, keeping one entry per responder. Its
// Handle method is a MessageHandler. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	order   []string
	byKey   map[string]*Response
	invalid int
	onNew   func(*Response)
}

// NewCollector creates an empty collector. onNew, if not nil, is called
// outside the collector's lock with a copy of each newly seen responder.
func NewCollector(onNew func(*Response)) *Collector {
	return &Collector{
		byKey: make(map[string]*Response),
		onNew: onNew,
	}
}

// Handle adds data, discarding messages that are not SSDP responses or
// notifications.
func (c *Collector) Handle(data []byte) {
	_, _, _ = c.Add(data)
}

// Add parses data and records it. It returns the stored response and
// whether the responder was new. M-SEARCH requests from other clients are
// ignored and return (nil, false, nil).
func (c *Collector) Add(data []byte) (*Response, bool, error) {
	r, err := ParseResponse(data)
	if err != nil {
		c.mu.Lock()
		c.invalid++
		c.mu.Unlock()
		return nil, false, err
	}
	if r.Kind == KindSearch {
		return nil, false, nil
	}

	key := r.Key()

	c.mu.Lock()
	if existing, ok := c.byKey[key]; ok {
		existing.Seen++
		stored := *existing
		c.mu.Unlock()
		return &stored, false, nil
	}
	c.byKey[key] = r
	c.order = append(c.order, key)
	stored := *r
	onNew := c.onNew
	c.mu.Unlock()

	if onNew != nil {
		copied := stored
		onNew(&copied)
	}
	return &stored, true, nil
}

// Responses returns copies of the collected responses in the order they were
// first seen.
func (c *Collector) Responses() []*Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Response, 0, len(c.order))
	for _, key := range c.order {
		r := *c.byKey[key]
		out = append(out, &r)
	}
	return out
}

// Len returns the number of distinct responders.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Invalid returns how many datagrams could not be parsed.
func (c *Collector) Invalid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid
}

// Reset forgets every collected response.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.byKey = make(map[string]*Response)
	c.invalid = 0
}

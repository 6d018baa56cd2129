package jsonrpc

import "sync"

// CorrelationTable maps outstanding JSON-RPC ids to the original request
// that produced them. Entries are inserted by the client->server worker
// when a request is forwarded (allowed) and removed by the server->client
// worker when the matching response arrives. Safe for concurrent use by
// both workers.
type CorrelationTable struct {
	mu      sync.Mutex
	entries map[string]*Message
}

// NewCorrelationTable creates an empty table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{
		entries: make(map[string]*Message),
	}
}

// Put records that a request with the given id was forwarded. No-op if key
// is empty (notifications never enter the table — callers should check
// CorrelationKey's ok return before calling Put).
func (t *CorrelationTable) Put(key string, original *Message) {
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = original
}

// Remove deletes the entry for key, if present, and reports whether it was
// found. Called when the matching response is observed, regardless of the
// response's validation verdict.
func (t *CorrelationTable) Remove(key string) (*Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	original, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return original, ok
}

// Len returns the number of outstanding entries. Used by health/diagnostic
// surfaces and tests asserting the table drains to empty.
func (t *CorrelationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Keys returns a snapshot of the currently outstanding ids.
func (t *CorrelationTable) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

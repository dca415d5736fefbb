package dispatcher

import (
	"context"
	"sort"
	"sync"

	"github.com/NOAA-OWP/DMOD-sub000/message"
)

// Request is a message whose header has been read.
type Request struct {
	Header message.Header
	Raw    []byte
}

// Handler serves one kind of request. Errors are converted to failure
// responses by the dispatcher.
type Handler func(ctx context.Context, req *Request) (*message.Response, error)

// Route selects a handler. Action is only set for dataset management.
type Route struct {
	EventType message.EventType
	Action    message.DatasetAction
}

// Table maps routes to handlers.
type Table struct {
	mu       sync.RWMutex
	handlers map[Route]Handler
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{handlers: make(map[Route]Handler)}
}

// Register sets the handler for route, replacing any previous one.
func (t *Table) Register(route Route, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[route] = h
}

// Lookup finds the handler for a header. Dataset management messages match
// their action first and fall back to a handler registered without one.
func (t *Table) Lookup(h message.Header) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h.EventType == message.EventDatasetManagement {
		if handler, ok := t.handlers[Route{EventType: h.EventType, Action: h.Action}]; ok {
			return handler, true
		}
	}
	handler, ok := t.handlers[Route{EventType: h.EventType}]
	return handler, ok
}

// Routes returns the registered routes, sorted.
func (t *Table) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Route, 0, len(t.handlers))
	for r := range t.handlers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Action < out[j].Action
	})
	return out
}

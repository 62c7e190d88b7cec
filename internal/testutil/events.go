package testutil

import (
	"context"
	"sync"

	"github.com/vidtube/apiserver/internal/events"
)

// Events captures published events.
type Events struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *Events) Publish(_ context.Context, event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// Types returns the published event types in order.
func (e *Events) Types() []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Type, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type)
	}
	return out
}

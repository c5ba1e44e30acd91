package patch

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Event reports one workflow transition.
type Event struct {
	WorkflowID string    `json:"workflowId"`
	DocID      string    `json:"docId"`
	LayerID    string    `json:"layerId"`
	State      State     `json:"state"`
	Version    string    `json:"version,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// hub fans events out to per-document subscribers. Slow subscribers lose
// their oldest undelivered event rather than blocking the workflow.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan Event]struct{})}
}

func (h *hub) subscribe(ctx context.Context, docID string) <-chan Event {
	docID = strings.TrimSpace(docID)
	out := make(chan Event, 16)
	h.mu.Lock()
	if h.subs[docID] == nil {
		h.subs[docID] = make(map[chan Event]struct{})
	}
	h.subs[docID][out] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[docID], out)
		if len(h.subs[docID]) == 0 {
			delete(h.subs, docID)
		}
		h.mu.Unlock()
		close(out)
	}()
	return out
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.DocID] {
		pushEvent(ch, ev)
	}
}

func pushEvent(out chan Event, ev Event) {
	select {
	case out <- ev:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- ev:
	default:
	}
}

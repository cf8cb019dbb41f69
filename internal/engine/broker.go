package engine

import (
	"sync"

	"github.com/vijaygupta18/multidb/internal/model"
)

// subscriberBufferSize is the channel buffer for each progress subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// maxClosedMarkers bounds how many finished executions keep a closed marker
// for late subscribers.
const maxClosedMarkers = 4096

// Event types published on the broker.
const (
	EventProgress       = "progress"
	EventTargetFinished = "target_finished"
	EventFinished       = "finished"
)

// Event is one progress notification for an execution.
type Event struct {
	Type        string           `json:"type"`
	ExecutionID string           `json:"execution_id"`
	Target      model.TargetName `json:"target,omitempty"`
	Current     int              `json:"current,omitempty"`
	Total       int              `json:"total,omitempty"`
	Statement   string           `json:"statement,omitempty"`
	Success     *bool            `json:"success,omitempty"`
	Status      string           `json:"status,omitempty"`
}

// ProgressBroker fans execution progress out to subscribers. It is safe for
// concurrent use.
//
// Closed topics are retained as markers so that late subscribers receive a
// closed channel instead of blocking forever. Only the most recent
// maxClosedMarkers are kept.
type ProgressBroker struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed []string
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewProgressBroker creates a new progress broker.
func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives events for the given execution
// and an unsubscribe function. If the execution has already finished, the
// returned channel is immediately closed.
func (b *ProgressBroker) Subscribe(executionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[executionID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends ev to all subscribers of the given execution. Events are
// dropped for subscribers whose buffers are full.
func (b *ProgressBroker) Publish(executionID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok || t.closed {
		return
	}

	ev.ExecutionID = executionID
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop the event for slow subscribers to avoid blocking execution.
		}
	}
}

// Close signals that no more events will be published for the given
// execution. All subscriber channels are closed and future Subscribe calls
// return a closed channel.
func (b *ProgressBroker) Close(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[executionID] = t
	}
	if t.closed {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closed = append(b.closed, executionID)
	if len(b.closed) > maxClosedMarkers {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}

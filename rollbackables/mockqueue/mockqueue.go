// Package mockqueue implements engine.Rollbackable as an in-memory FIFO
// message queue, standing in for a message broker dependency during
// exploration so actions can enqueue/dequeue without a live broker.
package mockqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/exploration-engine/engine"
)

// Message is one enqueued item.
type Message struct {
	ID         string
	Body       []byte
	EnqueuedAt time.Time
}

// Token holds a deep copy of the queue's contents at checkpoint time.
type Token struct {
	system   string
	messages []Message
}

func (t Token) System() string { return t.system }

// Adapter is a single named FIFO queue.
type Adapter struct {
	name     string
	mu       sync.Mutex
	messages []Message
	seq      int
}

// New constructs an empty queue Adapter.
func New(name string) *Adapter {
	if name == "" {
		name = "queue"
	}
	return &Adapter{name: name}
}

func (a *Adapter) Name() string { return a.name }

// Enqueue appends a message. Exposed for Action.Execute bodies.
func (a *Adapter) Enqueue(body []byte) Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	msg := Message{
		ID:         fmt.Sprintf("%s-%d", a.name, a.seq),
		Body:       append([]byte(nil), body...),
		EnqueuedAt: time.Now(),
	}
	a.messages = append(a.messages, msg)
	return msg
}

// Dequeue removes and returns the oldest message, if any.
func (a *Adapter) Dequeue() (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.messages) == 0 {
		return Message{}, false
	}
	msg := a.messages[0]
	a.messages = a.messages[1:]
	return msg, true
}

// Len returns the current queue depth.
func (a *Adapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]Message, len(a.messages))
	copy(cp, a.messages)
	return Token{system: a.name, messages: cp}, nil
}

func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append([]Message(nil), t.messages...)
	return nil
}

func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return engine.Observation{
		System: a.name,
		Data: map[string]interface{}{
			"depth": len(a.messages),
		},
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}

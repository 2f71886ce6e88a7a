// Package mockmail implements engine.Rollbackable as an in-memory outbox,
// standing in for a transactional email provider during exploration.
package mockmail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/exploration-engine/engine"
)

// Mail is one sent message recorded in the outbox.
type Mail struct {
	To      string
	Subject string
	Body    string
	SentAt  time.Time
}

// Token holds a deep copy of the outbox contents at checkpoint time.
type Token struct {
	system string
	sent   []Mail
}

func (t Token) System() string { return t.system }

// Adapter is an append-only outbox of sent mail.
type Adapter struct {
	name string
	mu   sync.Mutex
	sent []Mail
}

// New constructs an empty Adapter.
func New(name string) *Adapter {
	if name == "" {
		name = "mail"
	}
	return &Adapter{name: name}
}

func (a *Adapter) Name() string { return a.name }

// Send records one outgoing message. Exposed for Action.Execute bodies.
func (a *Adapter) Send(to, subject, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, Mail{To: to, Subject: subject, Body: body, SentAt: time.Now()})
}

// Sent returns a snapshot of every message sent so far, for invariants
// that assert on email side effects (e.g. "at most one confirmation per
// order").
func (a *Adapter) Sent() []Mail {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Mail, len(a.sent))
	copy(out, a.sent)
	return out
}

func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]Mail, len(a.sent))
	copy(cp, a.sent)
	return Token{system: a.name, sent: cp}, nil
}

func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append([]Mail(nil), t.sent...)
	return nil
}

func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return engine.Observation{
		System: a.name,
		Data: map[string]interface{}{
			"sent_count": len(a.sent),
		},
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}

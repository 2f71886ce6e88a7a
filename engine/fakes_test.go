package engine

import (
	"context"
	"fmt"
	"time"
)

// fakeOrder is the tiny domain model the agent tests explore: an order that
// can be created and refunded any number of times, and a user that can be
// created, deleted and updated. Deliberately permissive (no internal
// guard against double refund or update-after-delete) so the invariants
// under test are what catches misbehavior, not the fake itself.
type fakeOrder struct {
	ID       string
	Amount   int
	Refunded int
}

type fakeUser struct {
	ID      string
	Deleted bool
	Role    string
}

// fakeToken is the in-memory rollbackable's checkpoint token: a deep copy
// of the store's contents at Checkpoint time.
type fakeToken struct {
	orders map[string]fakeOrder
	users  map[string]fakeUser
}

func (fakeToken) System() string { return "store" }

// fakeStore is a Rollbackable standing in for a relational backend: orders
// and users keyed by id, observed as row counts plus per-row summaries so
// fingerprints change exactly when the tracked fields change.
type fakeStore struct {
	orders  map[string]fakeOrder
	users   map[string]fakeUser
	orderSeq int
	userSeq  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]fakeOrder{}, users: map[string]fakeUser{}}
}

func (s *fakeStore) Name() string { return "store" }

func (s *fakeStore) Checkpoint(ctx context.Context, name string) (CheckpointToken, error) {
	orders := make(map[string]fakeOrder, len(s.orders))
	for k, v := range s.orders {
		orders[k] = v
	}
	users := make(map[string]fakeUser, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	return fakeToken{orders: orders, users: users}, nil
}

func (s *fakeStore) Rollback(ctx context.Context, token CheckpointToken) error {
	t, ok := token.(fakeToken)
	if !ok {
		return fmt.Errorf("store: token of wrong type %T", token)
	}
	s.orders = make(map[string]fakeOrder, len(t.orders))
	for k, v := range t.orders {
		s.orders[k] = v
	}
	s.users = make(map[string]fakeUser, len(t.users))
	for k, v := range t.users {
		s.users[k] = v
	}
	return nil
}

func (s *fakeStore) Observe(ctx context.Context) (Observation, error) {
	data := map[string]interface{}{
		"order_count": len(s.orders),
		"user_count":  len(s.users),
	}
	for id, o := range s.orders {
		data["order:"+id+":refunded"] = o.Refunded
		data["order:"+id+":amount"] = o.Amount
	}
	for id, u := range s.users {
		data["user:"+id+":deleted"] = u.Deleted
		data["user:"+id+":role"] = u.Role
	}
	return Observation{System: "store", Data: data, ObservedAt: time.Now()}, nil
}

func (s *fakeStore) Close(ctx context.Context) error { return nil }

// failingCheckpointStore always fails Checkpoint, for World atomicity
// tests.
type failingCheckpointStore struct{ name string }

func (f failingCheckpointStore) Name() string { return f.name }
func (f failingCheckpointStore) Checkpoint(ctx context.Context, name string) (CheckpointToken, error) {
	return nil, fmt.Errorf("%s: checkpoint always fails", f.name)
}
func (f failingCheckpointStore) Rollback(ctx context.Context, token CheckpointToken) error {
	return nil
}
func (f failingCheckpointStore) Observe(ctx context.Context) (Observation, error) {
	return Observation{System: f.name}, nil
}
func (f failingCheckpointStore) Close(ctx context.Context) error { return nil }

// countingStore records every Checkpoint/Rollback call it receives, to
// assert fixed-order and release-in-reverse-order behavior.
type countingStore struct {
	name        string
	checkpoints []string
	rollbacks   []string
	failCheckpoint bool
	releases    []string
}

func (c *countingStore) Name() string { return c.name }
func (c *countingStore) Checkpoint(ctx context.Context, name string) (CheckpointToken, error) {
	c.checkpoints = append(c.checkpoints, c.name)
	if c.failCheckpoint {
		return nil, fmt.Errorf("%s: induced failure", c.name)
	}
	return fakeToken{}, nil
}
func (c *countingStore) Rollback(ctx context.Context, token CheckpointToken) error {
	c.rollbacks = append(c.rollbacks, c.name)
	return nil
}
func (c *countingStore) Observe(ctx context.Context) (Observation, error) {
	return Observation{System: c.name}, nil
}
func (c *countingStore) Close(ctx context.Context) error { return nil }
func (c *countingStore) Release(ctx context.Context, token CheckpointToken) error {
	c.releases = append(c.releases, c.name)
	return nil
}

// fakeTransport drives the fakeStore directly instead of a real HTTP
// round trip, so engine tests exercise the Agent/World/Graph contracts
// without a network dependency. Method/path pairs map to store mutations
// the way an httptest.Server handler would.
type fakeTransport struct {
	store *fakeStore
}

func (f *fakeTransport) Get(path string, headers map[string]string) *ActionResult {
	return f.Request("GET", path, headers, nil)
}
func (f *fakeTransport) Post(path string, body interface{}, headers map[string]string) *ActionResult {
	return f.Request("POST", path, headers, body)
}
func (f *fakeTransport) Put(path string, body interface{}, headers map[string]string) *ActionResult {
	return f.Request("PUT", path, headers, body)
}
func (f *fakeTransport) Patch(path string, body interface{}, headers map[string]string) *ActionResult {
	return f.Request("PATCH", path, headers, body)
}
func (f *fakeTransport) Delete(path string, headers map[string]string) *ActionResult {
	return f.Request("DELETE", path, headers, nil)
}

func (f *fakeTransport) Request(method, path string, headers map[string]string, body interface{}) *ActionResult {
	status := 200
	switch {
	case method == "GET" && path == "/health":
		status = 204
	case method == "POST" && path == "/orders":
		f.store.orderSeq++
		id := fmt.Sprintf("o%d", f.store.orderSeq)
		amount := 0
		if m, ok := body.(map[string]interface{}); ok {
			if a, ok := m["amount"].(int); ok {
				amount = a
			}
		}
		f.store.orders[id] = fakeOrder{ID: id, Amount: amount}
		status = 201
	case method == "POST" && refundPathID(path) != "":
		id := refundPathID(path)
		o := f.store.orders[id]
		o.Refunded += o.Amount
		f.store.orders[id] = o
		status = 200
	case method == "POST" && path == "/users":
		f.store.userSeq++
		id := fmt.Sprintf("u%d", f.store.userSeq)
		f.store.users[id] = fakeUser{ID: id}
		status = 201
	case method == "DELETE" && userPathID(path) != "":
		id := userPathID(path)
		u := f.store.users[id]
		u.Deleted = true
		f.store.users[id] = u
		status = 204
	case method == "PATCH" && userPathID(path) != "":
		id := userPathID(path)
		u := f.store.users[id]
		if m, ok := body.(map[string]interface{}); ok {
			if role, ok := m["role"].(string); ok {
				u.Role = role
			}
		}
		f.store.users[id] = u
		status = 200
	default:
		status = 404
	}

	return &ActionResult{
		Success:    true,
		Request:    &HTTPRequest{Method: method, URL: path},
		Response:   &HTTPResponse{StatusCode: status},
		DurationMS: 1,
		Timestamp:  time.Now(),
	}
}

func (f *fakeTransport) Close() error { return nil }

func refundPathID(path string) string {
	const suffix = "/refund"
	const prefix = "/orders/"
	if len(path) > len(prefix)+len(suffix) && path[:len(prefix)] == prefix && path[len(path)-len(suffix):] == suffix {
		return path[len(prefix) : len(path)-len(suffix)]
	}
	return ""
}

func userPathID(path string) string {
	const prefix = "/users/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return ""
}

package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/pkg/randx"
)

// newTestClient builds a Client with a live send queue but no underlying
// connection; tests never run the pumps.
func newTestClient() *Client {
	return &Client{
		id:     randx.ConnectionID(),
		state:  StateUnauthenticated,
		send:   make(chan []byte, sendQueueSize),
		logger: zerolog.Nop(),
	}
}

// transition is one observed presence change.
type transition struct {
	userID string
	online bool
}

// transitionRecorder collects transitions in the order the registry emitted them.
type transitionRecorder struct {
	mu          sync.Mutex
	transitions []transition
}

func (r *transitionRecorder) record(userID string, online bool, _ []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transition{userID: userID, online: online})
}

func (r *transitionRecorder) snapshot() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// drainEvents empties the client's send queue and decodes every queued event.
func drainEvents(t *testing.T, c *Client) []Event {
	t.Helper()

	var events []Event
	for {
		select {
		case raw := <-c.send:
			var ev Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRegistryBindAndLookup(t *testing.T) {
	reg := NewRegistry(nil)
	c := newTestClient()

	evicted := reg.Bind(c, "alice")
	assert.Nil(t, evicted)

	got, ok := reg.LookupConnection("alice")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, reg.OnlineCount())

	_, ok = reg.LookupConnection("bob")
	assert.False(t, ok)
}

func TestRegistryLastAuthenticatedWins(t *testing.T) {
	reg := NewRegistry(nil)
	first := newTestClient()
	second := newTestClient()

	reg.Bind(first, "alice")
	evicted := reg.Bind(second, "alice")

	require.Same(t, first, evicted)
	assert.Equal(t, 1, reg.OnlineCount())

	got, ok := reg.LookupConnection("alice")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryStaleUnbindIsNoOp(t *testing.T) {
	rec := &transitionRecorder{}
	reg := NewRegistry(rec.record)
	first := newTestClient()
	second := newTestClient()

	reg.Bind(first, "alice")
	reg.Bind(second, "alice")

	// The replaced connection disconnects after the replacement; its unbind must
	// not take the newer binding offline.
	userID, ok := reg.Unbind(first)
	assert.False(t, ok)
	assert.Empty(t, userID)

	got, ok := reg.LookupConnection("alice")
	require.True(t, ok)
	assert.Same(t, second, got)

	// No offline transition was emitted for the stale unbind.
	for _, tr := range rec.snapshot() {
		assert.True(t, tr.online, "stale unbind emitted an offline transition")
	}
}

func TestRegistryUnbindEmitsOffline(t *testing.T) {
	rec := &transitionRecorder{}
	reg := NewRegistry(rec.record)
	c := newTestClient()

	reg.Bind(c, "alice")
	userID, ok := reg.Unbind(c)
	require.True(t, ok)
	assert.Equal(t, "alice", userID)
	assert.Equal(t, 0, reg.OnlineCount())

	got := rec.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, transition{userID: "alice", online: true}, got[0])
	assert.Equal(t, transition{userID: "alice", online: false}, got[1])
}

func TestRegistryReauthenticateAsDifferentUser(t *testing.T) {
	rec := &transitionRecorder{}
	reg := NewRegistry(rec.record)
	c := newTestClient()

	reg.Bind(c, "alice")
	reg.Bind(c, "bob")

	_, ok := reg.LookupConnection("alice")
	assert.False(t, ok, "old identity must be offline after re-authentication")

	got, ok := reg.LookupConnection("bob")
	require.True(t, ok)
	assert.Same(t, c, got)

	// alice online, alice offline, bob online, in that order.
	want := []transition{
		{userID: "alice", online: true},
		{userID: "alice", online: false},
		{userID: "bob", online: true},
	}
	assert.Equal(t, want, rec.snapshot())
}

func TestRegistryRebindSameUserSameConnection(t *testing.T) {
	reg := NewRegistry(nil)
	c := newTestClient()

	reg.Bind(c, "alice")
	evicted := reg.Bind(c, "alice")

	assert.Nil(t, evicted, "re-binding the same connection must not evict itself")
	assert.Equal(t, 1, reg.OnlineCount())
}

func TestRegistryTransitionOrderingPerUser(t *testing.T) {
	rec := &transitionRecorder{}
	reg := NewRegistry(rec.record)

	// Churn one user through rapid connect/disconnect cycles; the observed
	// sequence must strictly alternate online/offline.
	for i := 0; i < 50; i++ {
		c := newTestClient()
		reg.Bind(c, "alice")
		reg.Unbind(c)
	}

	got := rec.snapshot()
	require.Len(t, got, 100)
	for i, tr := range got {
		assert.Equal(t, "alice", tr.userID)
		assert.Equal(t, i%2 == 0, tr.online, "transition %d out of order", i)
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	reg := NewRegistry(func(string, bool, []*Client) {})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			for j := 0; j < 100; j++ {
				c := newTestClient()
				reg.Bind(c, userID)
				reg.Unbind(c)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.OnlineCount())
	assert.Empty(t, reg.Bound())
}

func TestHubBroadcastsPresenceToBoundClients(t *testing.T) {
	hub := NewHub()
	observer := newTestClient()
	hub.BindClient(observer, "alice")
	drainEvents(t, observer) // discard alice's own online event

	joiner := newTestClient()
	hub.BindClient(joiner, "bob")

	events := drainEvents(t, observer)
	require.Len(t, events, 1)
	assert.Equal(t, TypeUserStatus, events[0].Type)

	var status UserStatusPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &status))
	assert.Equal(t, "bob", status.UserID)
	assert.Equal(t, StatusOnline, status.Status)

	hub.UnbindClient(joiner)

	events = drainEvents(t, observer)
	require.Len(t, events, 1)
	require.NoError(t, json.Unmarshal(events[0].Payload, &status))
	assert.Equal(t, "bob", status.UserID)
	assert.Equal(t, StatusOffline, status.Status)
}

func TestHubPushToOfflineUser(t *testing.T) {
	hub := NewHub()

	delivered := hub.Push("nobody", TypeNewMessage, NewMessagePayload{MessageID: "m1"})
	assert.False(t, delivered)
}

func TestHubPushDeliversToBoundClient(t *testing.T) {
	hub := NewHub()
	c := newTestClient()
	hub.BindClient(c, "alice")
	drainEvents(t, c)

	delivered := hub.Push("alice", TypeNewMessage, NewMessagePayload{MessageID: "m1", SenderID: "bob"})
	require.True(t, delivered)

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, TypeNewMessage, events[0].Type)

	var payload NewMessagePayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "m1", payload.MessageID)
	assert.Equal(t, "bob", payload.SenderID)
}

func TestHubPushAfterShutdownDropsSilently(t *testing.T) {
	hub := NewHub()
	c := newTestClient()
	hub.BindClient(c, "alice")

	hub.Shutdown()

	// The connection's queue is closed; a racing push must drop, not panic.
	delivered := hub.Push("alice", TypeNewMessage, NewMessagePayload{MessageID: "m1"})
	assert.False(t, delivered)
}

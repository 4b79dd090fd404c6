package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/randx"
)

// newHandshakeClient builds an unauthenticated client wired to the given hub and
// router, with a verifier that accepts tokens of the form "token-<userID>".
func newHandshakeClient(hub *Hub, router *Router) *Client {
	verify := func(token string) (string, error) {
		const prefix = "token-"
		if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
			return "", errors.New("malformed token")
		}
		return token[len(prefix):], nil
	}

	return &Client{
		id:     randx.ConnectionID(),
		hub:    hub,
		router: router,
		verify: verify,
		state:  StateUnauthenticated,
		send:   make(chan []byte, sendQueueSize),
		logger: zerolog.Nop(),
	}
}

func dispatchEvent(t *testing.T, c *Client, eventType EventType, payload any) {
	t.Helper()

	ev, err := NewEvent(eventType, payload)
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	c.dispatch(raw)
}

func findEvent(events []Event, eventType EventType) (Event, bool) {
	for _, ev := range events {
		if ev.Type == eventType {
			return ev, true
		}
	}
	return Event{}, false
}

func TestClientRejectsSendBeforeAuthentication(t *testing.T) {
	router, _, hub := newTestRouter(t, "alice", "bob")
	c := newHandshakeClient(hub, router)

	dispatchEvent(t, c, TypeSendMessage, SendMessagePayload{RecipientID: "bob", Content: "hi"})

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, TypeError, events[0].Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, errs.ErrNotAuthenticated, payload.Code)

	assert.Equal(t, StateUnauthenticated, c.state)
	assert.Equal(t, 0, hub.Registry().OnlineCount())
}

func TestClientAuthErrorOnBadToken(t *testing.T) {
	router, _, hub := newTestRouter(t, "alice")
	c := newHandshakeClient(hub, router)

	dispatchEvent(t, c, TypeAuthenticate, AuthenticatePayload{Token: "garbage"})

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, TypeAuthError, events[0].Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, errs.ErrInvalidToken, payload.Code)

	// The connection stays open and unauthenticated; a retry can still succeed.
	assert.Equal(t, StateUnauthenticated, c.state)

	dispatchEvent(t, c, TypeAuthenticate, AuthenticatePayload{Token: "token-alice"})
	assert.Equal(t, StateAuthenticated, c.state)
}

func TestClientAuthErrorOnMissingToken(t *testing.T) {
	router, _, hub := newTestRouter(t)
	c := newHandshakeClient(hub, router)

	dispatchEvent(t, c, TypeAuthenticate, AuthenticatePayload{})

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, TypeAuthError, events[0].Type)
	assert.Equal(t, StateUnauthenticated, c.state)
}

func TestClientAuthenticateSuccess(t *testing.T) {
	router, _, hub := newTestRouter(t, "alice")
	c := newHandshakeClient(hub, router)

	dispatchEvent(t, c, TypeAuthenticate, AuthenticatePayload{Token: "token-alice"})

	assert.Equal(t, StateAuthenticated, c.state)
	assert.Equal(t, "alice", c.userID)

	bound, ok := hub.Registry().LookupConnection("alice")
	require.True(t, ok)
	assert.Same(t, c, bound)

	events := drainEvents(t, c)

	authEv, ok := findEvent(events, TypeAuthenticated)
	require.True(t, ok, "missing AUTHENTICATED confirmation")
	var confirmed AuthenticatedPayload
	require.NoError(t, json.Unmarshal(authEv.Payload, &confirmed))
	assert.Equal(t, "success", confirmed.Status)
	assert.Equal(t, "alice", confirmed.UserID)

	// Binding broadcasts the user's own online transition to every bound
	// connection, this one included.
	statusEv, ok := findEvent(events, TypeUserStatus)
	require.True(t, ok, "missing USER_STATUS broadcast")
	var status UserStatusPayload
	require.NoError(t, json.Unmarshal(statusEv.Payload, &status))
	assert.Equal(t, "alice", status.UserID)
	assert.Equal(t, StatusOnline, status.Status)
}

func TestClientSendAfterAuthentication(t *testing.T) {
	router, st, hub := newTestRouter(t, "alice", "bob")

	sender := newHandshakeClient(hub, router)
	dispatchEvent(t, sender, TypeAuthenticate, AuthenticatePayload{Token: "token-alice"})
	drainEvents(t, sender)

	recipient := newHandshakeClient(hub, router)
	dispatchEvent(t, recipient, TypeAuthenticate, AuthenticatePayload{Token: "token-bob"})
	drainEvents(t, sender)
	drainEvents(t, recipient)

	dispatchEvent(t, sender, TypeSendMessage, SendMessagePayload{RecipientID: "bob", Content: "hello"})

	senderEvents := drainEvents(t, sender)
	sentEv, ok := findEvent(senderEvents, TypeMessageSent)
	require.True(t, ok, "sender missing MESSAGE_SENT confirmation")
	var sent MessageSentPayload
	require.NoError(t, json.Unmarshal(sentEv.Payload, &sent))
	assert.NotEmpty(t, sent.MessageID)

	recipientEvents := drainEvents(t, recipient)
	newEv, ok := findEvent(recipientEvents, TypeNewMessage)
	require.True(t, ok, "recipient missing NEW_MESSAGE push")
	var pushed NewMessagePayload
	require.NoError(t, json.Unmarshal(newEv.Payload, &pushed))
	assert.Equal(t, sent.MessageID, pushed.MessageID)
	assert.Equal(t, sent.ConversationID, pushed.ConversationID)
	assert.Equal(t, "alice", pushed.SenderID)
	assert.Equal(t, "hello", pushed.Content)

	msgs, err := st.ListMessages(context.Background(), sent.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestClientSendErrorsAreReportedToSender(t *testing.T) {
	router, _, hub := newTestRouter(t, "alice")

	c := newHandshakeClient(hub, router)
	dispatchEvent(t, c, TypeAuthenticate, AuthenticatePayload{Token: "token-alice"})
	drainEvents(t, c)

	dispatchEvent(t, c, TypeSendMessage, SendMessagePayload{RecipientID: "ghost", Content: "hello?"})

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, TypeError, events[0].Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, errs.ErrRecipientNotFound, payload.Code)
}

func TestClientIgnoresMalformedFrames(t *testing.T) {
	router, _, hub := newTestRouter(t)
	c := newHandshakeClient(hub, router)

	c.dispatch([]byte("not json at all"))

	assert.Empty(t, drainEvents(t, c))
	assert.Equal(t, StateUnauthenticated, c.state)
}

func TestClientUnknownEventBeforeAuth(t *testing.T) {
	router, _, hub := newTestRouter(t)
	c := newHandshakeClient(hub, router)

	dispatchEvent(t, c, EventType("MYSTERY"), map[string]string{"x": "y"})

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, TypeError, events[0].Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, errs.ErrNotAuthenticated, payload.Code)
}

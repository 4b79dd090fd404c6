/*
Package chat contains the presence and message-routing core.

This file defines the Client struct, representing one realtime WebSocket connection.
A connection moves through an explicit state machine, Unauthenticated to Authenticated
to Closed, and every inbound action is dispatched through a single entry point from the
read loop, which structurally guarantees per-connection ordering.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the capacity of the per-connection outbound queue.
	sendQueueSize = 256
)

// ConnState is the lifecycle state of a realtime connection.
type ConnState int

const (
	// StateUnauthenticated is entered on connect. The only meaningful inbound
	// action in this state is an AUTHENTICATE event.
	StateUnauthenticated ConnState = iota

	// StateAuthenticated is entered after a valid token; the connection is bound
	// in the presence registry for as long as it holds the binding.
	StateAuthenticated

	// StateClosed is entered on disconnect from any state and is terminal.
	StateClosed
)

// TokenVerifier validates a presented token and returns the user identity it is
// bound to. It is the surface of the external credential service.
type TokenVerifier func(token string) (userID string, err error)

// Client represents an active WebSocket connection and its handshake state.
type Client struct {
	// process-local connection id; never persisted.
	id string

	// hub owning the presence registry this connection binds into.
	hub *Hub

	// router invoked for send requests arriving over this connection.
	router *Router

	// verify validates handshake tokens.
	verify TokenVerifier

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// state is only mutated from the read loop, which is the single dispatch
	// point for this connection.
	state ConnState

	// userID is set on successful authentication.
	userID string

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// sendMu and sendClosed make enqueue and closeSend safe against each other:
	// a push racing a shutdown must drop silently, never panic on a closed channel.
	sendMu     sync.Mutex
	sendClosed bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for a freshly upgraded connection, in the
// Unauthenticated state.
func NewClient(hub *Hub, router *Router, verify TokenVerifier, wsConn *websocket.Conn) *Client {
	connID := randx.ConnectionID()

	clientLogger := logx.Logger().With().
		Str("component", "Client").
		Str("conn_id", connID).
		Logger()

	return &Client{
		id:     connID,
		hub:    hub,
		router: router,
		verify: verify,
		conn:   wsConn,
		state:  StateUnauthenticated,
		send:   make(chan []byte, sendQueueSize),
		logger: clientLogger,
	}
}

// ID returns the process-local connection id.
func (c *Client) ID() string {
	return c.id
}

// ReadPump handles reading messages from the WebSocket connection.
// It handles heartbeats (Pong), event dispatch, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.dispatch(messageBytes)
	}
}

// cleanupOnDisconnect transitions the connection to Closed and removes its
// presence binding. Disconnect is the only cancellation signal: the unbind (and
// the offline broadcast it triggers) happens unconditionally, even when a send
// to this connection is concurrently in flight.
func (c *Client) cleanupOnDisconnect() {
	wasAuthenticated := c.state == StateAuthenticated
	c.state = StateClosed

	if wasAuthenticated {
		c.hub.UnbindClient(c)
	}

	c.logger.Info().Bool("was_authenticated", wasAuthenticated).Msg("Client connection cleanup starting.")

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Client connection close error")
	}
}

// dispatch is the single entry point for inbound events. The state machine is
// enforced here: before authentication the only accepted action is AUTHENTICATE,
// everything else is answered with a NotAuthenticated error and the connection
// stays open for retry.
func (c *Client) dispatch(messageBytes []byte) {
	if c.state == StateClosed {
		return
	}

	var ev Event
	if err := json.Unmarshal(messageBytes, &ev); err != nil {
		c.logger.Warn().Err(err).
			Bytes("message_bytes", messageBytes).
			Msg("Client sent invalid JSON")
		return
	}

	switch ev.Type {
	case TypeAuthenticate:
		c.handleAuthenticate(ev.Payload)

	case TypeSendMessage:
		if c.state != StateAuthenticated {
			c.SendError(errs.NewError(errs.ErrNotAuthenticated))
			return
		}
		c.handleSend(ev.Payload)

	default:
		if c.state != StateAuthenticated {
			c.SendError(errs.NewError(errs.ErrNotAuthenticated))
			return
		}
		c.logger.Warn().Str("event_type", string(ev.Type)).Msg("Client sent unsupported event type")
	}
}

// handleAuthenticate verifies the presented token and, on success, binds the
// connection in the presence registry. On failure the connection remains in its
// current state and an AUTH_ERROR is signaled; the client may retry.
func (c *Client) handleAuthenticate(payloadBytes json.RawMessage) {
	var authPayload AuthenticatePayload
	if err := json.Unmarshal(payloadBytes, &authPayload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid AUTHENTICATE payload")
		c.sendEvent(TypeAuthError, ErrorPayload{Code: errs.ErrInvalidToken, Message: "Invalid or missing token."})
		return
	}

	if authPayload.Token == "" {
		c.sendEvent(TypeAuthError, ErrorPayload{Code: errs.ErrInvalidToken, Message: "Invalid or missing token."})
		return
	}

	userID, err := c.verify(authPayload.Token)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Token verification failed during handshake")
		c.sendEvent(TypeAuthError, ErrorPayload{Code: errs.ErrInvalidToken, Message: "Invalid or missing token."})
		return
	}

	c.userID = userID
	c.state = StateAuthenticated
	c.hub.BindClient(c, userID)

	c.logger.Info().Str("user_id", userID).Msg("Client authenticated.")

	c.sendEvent(TypeAuthenticated, AuthenticatedPayload{Status: "success", UserID: userID})
}

// handleSend routes a send request through the Message Router. The realtime
// channel and the REST fallback path both call the same router operation.
func (c *Client) handleSend(payloadBytes json.RawMessage) {
	var sendPayload SendMessagePayload
	if err := json.Unmarshal(payloadBytes, &sendPayload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid SEND_MESSAGE payload")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	result, customErr := c.router.Send(context.Background(), c.userID, sendPayload.RecipientID, sendPayload.Content)
	if customErr != nil {
		c.SendError(customErr)
		return
	}

	c.sendEvent(TypeMessageSent, MessageSentPayload{
		MessageID:      result.MessageID,
		Timestamp:      result.Timestamp,
		ConversationID: result.ConversationID,
	})
}

// WritePump handles writing messages from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage handles messages pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue attempts a non-blocking handoff of raw bytes to the write pump.
// A full queue or a connection that is concurrently closing drops the bytes;
// every delivery through this path is fire-and-forget.
func (c *Client) enqueue(raw []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}

	select {
	case c.send <- raw:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return false
	}
}

// closeSend closes the outbound queue exactly once, signalling the write pump
// to send a close frame and exit.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}

	c.sendClosed = true
	close(c.send)
}

// sendEvent marshals an outbound event and queues it for this connection.
func (c *Client) sendEvent(eventType EventType, payload any) {
	ev, err := NewEvent(eventType, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to build outbound event")
		return
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to marshal outbound event")
		return
	}

	if !c.enqueue(raw) {
		c.logger.Warn().Str("event_type", string(eventType)).Msg("Failed to queue outbound event")
	}
}

// SendError constructs and sends a TypeError event to the client.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	c.sendEvent(TypeError, ErrorPayload{Code: code, Message: message})
}

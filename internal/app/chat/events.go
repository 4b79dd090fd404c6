/*
Package chat contains the presence and message-routing core: the live mapping between
authenticated users and realtime connections, the conversation identity resolver, and
the router that persists and delivers messages.

This file defines the wire events exchanged over the realtime channel. The envelope
shape is owned by the transport; these types only name the actions and payloads.
*/
package chat

import (
	"encoding/json"
	"time"
)

// EventType identifies the action carried by a realtime event.
type EventType string

// Inbound event types (client to server).
const (
	TypeAuthenticate EventType = "AUTHENTICATE"
	TypeSendMessage  EventType = "SEND_MESSAGE"
)

// Outbound event types (server to client).
const (
	TypeAuthenticated EventType = "AUTHENTICATED"
	TypeAuthError     EventType = "AUTH_ERROR"
	TypeNewMessage    EventType = "NEW_MESSAGE"
	TypeMessageSent   EventType = "MESSAGE_SENT"
	TypeUserStatus    EventType = "USER_STATUS"
	TypeError         EventType = "ERROR"
)

// Presence statuses carried by USER_STATUS events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is the framing envelope for every realtime message in either direction.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals the payload into an outbound Event envelope.
func NewEvent(eventType EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// AuthenticatePayload carries the token presented during the handshake.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// SendMessagePayload is the realtime send request.
type SendMessagePayload struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// AuthenticatedPayload confirms a successful handshake.
type AuthenticatedPayload struct {
	Status string `json:"status"`
	UserID string `json:"userId"`
}

// NewMessagePayload is the push delivered to a live recipient.
type NewMessagePayload struct {
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId"`
}

// MessageSentPayload is the persistence confirmation returned to the sender.
type MessageSentPayload struct {
	MessageID      string    `json:"messageId"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId"`
}

// UserStatusPayload announces a presence transition.
type UserStatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ErrorPayload carries an application error to the client.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

/*
Package randx provides generation of the opaque unique identifiers used across the system.

Users, conversations, messages, and realtime connections are all identified by UUID v4
strings. Connection ids are process-local and never persisted.
*/
package randx

import "github.com/google/uuid"

// UserID generates a unique identifier for a newly registered user.
func UserID() string {
	return uuid.New().String()
}

// MessageID generates a unique identifier for a message at persistence time.
func MessageID() string {
	return uuid.New().String()
}

// ConversationID generates a candidate identifier for a conversation record.
// The persistence layer decides whether the candidate survives a concurrent
// create for the same participant pair.
func ConversationID() string {
	return uuid.New().String()
}

// ConnectionID generates a process-local identifier for a realtime connection.
func ConnectionID() string {
	return uuid.New().String()
}

/*
Package chat contains the presence and message-routing core.

This file defines the Router, the orchestration component behind every send: it
resolves the conversation, persists the message with its summary update, and attempts
live delivery. The realtime channel and the REST fallback path are alternate entry
points into the same operations, not two implementations.
*/
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dmchat/internal/app/store"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

// Store is the slice of the persistence layer the Router needs.
// *store.Store satisfies it; tests substitute an in-memory implementation.
type Store interface {
	ConversationStore

	UserExists(ctx context.Context, id string) (bool, error)
	GetConversation(ctx context.Context, id string) (store.Conversation, error)
	AppendMessage(ctx context.Context, m store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, recipientID string) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
}

// SendResult is what the sender gets back once the message is durably persisted,
// independent of whether the recipient was reachable.
type SendResult struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// Router orchestrates message sends and the conversation read path.
type Router struct {
	store    Store
	resolver *Resolver
	hub      *Hub
	logger   zerolog.Logger
}

// NewRouter constructs a Router over the given store and hub.
func NewRouter(st Store, hub *Hub) *Router {
	return &Router{
		store:    st,
		resolver: NewResolver(st),
		hub:      hub,
		logger:   logx.Logger().With().Str("component", "Router").Logger(),
	}
}

// Send persists a message from senderID to recipientID and attempts live
// delivery. The caller has already authenticated senderID. Persistence decides
// the outcome: once the message is durably appended, Send succeeds no matter
// what happens to the push.
//
// The recipient must reference a registered user; an unknown recipient fails
// with RecipientNotFound instead of silently growing an unreachable conversation.
func (rt *Router) Send(ctx context.Context, senderID, recipientID, content string) (*SendResult, *errs.CustomError) {
	if strings.TrimSpace(content) == "" {
		return nil, errs.NewError(errs.ErrEmptyContent)
	}

	if senderID == recipientID {
		return nil, errs.NewError(errs.ErrInvalidParticipants)
	}

	exists, err := rt.store.UserExists(ctx, recipientID)
	if err != nil {
		rt.logger.Error().Err(err).Msg("Recipient lookup failed.")
		return nil, errs.NewError(errs.ErrPersistence)
	}
	if !exists {
		return nil, errs.NewError(errs.ErrRecipientNotFound)
	}

	conversationID, customErr := rt.resolver.Resolve(ctx, senderID, recipientID)
	if customErr != nil {
		return nil, customErr
	}

	msg := store.Message{
		ID:             randx.MessageID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	// One transactional append covers the message and the conversation summary,
	// so a persisted message can never lack its summary update.
	if err := rt.store.AppendMessage(ctx, msg); err != nil {
		rt.logger.Error().Err(err).
			Str("conversation_id", conversationID).
			Msg("Message append failed.")
		return nil, errs.NewError(errs.ErrPersistence)
	}

	// Fire-and-forget push. An offline or just-disconnected recipient is the
	// expected steady state, not an error; history is the consistent fallback.
	delivered := rt.hub.Push(recipientID, TypeNewMessage, NewMessagePayload{
		MessageID:      msg.ID,
		SenderID:       senderID,
		Content:        content,
		Timestamp:      msg.CreatedAt,
		ConversationID: conversationID,
	})

	rt.logger.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", conversationID).
		Bool("pushed", delivered).
		Msg("Message routed.")

	return &SendResult{
		MessageID:      msg.ID,
		ConversationID: conversationID,
		Timestamp:      msg.CreatedAt,
	}, nil
}

// History returns the conversation's messages in non-decreasing timestamp order
// and, as a side effect, marks every message addressed to callerID as read. The
// mark is idempotent; a failed mark is logged and re-driven by the next fetch
// rather than failing the read.
func (rt *Router) History(ctx context.Context, conversationID, callerID string) ([]store.Message, *errs.CustomError) {
	conv, customErr := rt.authorizeParticipant(ctx, conversationID, callerID)
	if customErr != nil {
		return nil, customErr
	}

	messages, err := rt.store.ListMessages(ctx, conv.ID)
	if err != nil {
		rt.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("History query failed.")
		return nil, errs.NewError(errs.ErrPersistence)
	}

	if err := rt.store.MarkConversationRead(ctx, conv.ID, callerID); err != nil {
		rt.logger.Error().Err(err).
			Str("conversation_id", conv.ID).
			Msg("Read-flag update failed; will be retried on next fetch.")
	}

	return messages, nil
}

// UnreadCount returns how many messages in the conversation are addressed to
// callerID and still unread.
func (rt *Router) UnreadCount(ctx context.Context, conversationID, callerID string) (int64, *errs.CustomError) {
	conv, customErr := rt.authorizeParticipant(ctx, conversationID, callerID)
	if customErr != nil {
		return 0, customErr
	}

	count, err := rt.store.UnreadCount(ctx, conv.ID, callerID)
	if err != nil {
		rt.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Unread count query failed.")
		return 0, errs.NewError(errs.ErrPersistence)
	}

	return count, nil
}

// authorizeParticipant fetches the conversation and rejects callers that are not
// one of its two participants.
func (rt *Router) authorizeParticipant(ctx context.Context, conversationID, callerID string) (store.Conversation, *errs.CustomError) {
	conv, err := rt.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Conversation{}, errs.NewError(errs.ErrConversationNotFound)
		}
		rt.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Conversation lookup failed.")
		return store.Conversation{}, errs.NewError(errs.ErrPersistence)
	}

	if !conv.HasParticipant(callerID) {
		return store.Conversation{}, errs.NewError(errs.ErrNotAuthorized)
	}

	return conv, nil
}

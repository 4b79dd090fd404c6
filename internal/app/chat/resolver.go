/*
Package chat contains the presence and message-routing core.

This file defines the conversation identity resolver: the mapping from an unordered
pair of users to one canonical, stable conversation id, created lazily on first contact.
*/
package chat

import (
	"context"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

// ConversationStore is the slice of the persistence layer the resolver needs.
// GetOrCreateConversation must be atomic against concurrent creates for the same
// pair: exactly one record survives and every caller gets the surviving id. An
// in-process lock is not enough because the realtime and fallback paths may race
// from different connections; the store backs this with a uniqueness constraint
// on the canonical pair.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, candidateID, low, high string) (id string, created bool, err error)
}

// Resolver maps an unordered pair of user identities to one canonical
// conversation identity.
type Resolver struct {
	store  ConversationStore
	logger zerolog.Logger
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store ConversationStore) *Resolver {
	return &Resolver{
		store:  store,
		logger: logx.Logger().With().Str("component", "Resolver").Logger(),
	}
}

// Resolve returns the conversation id for the pair (userA, userB), creating the
// record on first contact. The pair is canonicalized before lookup, so
// Resolve(A, B) and Resolve(B, A) always return the same id. A pair of equal
// ids is rejected with InvalidParticipants.
func (r *Resolver) Resolve(ctx context.Context, userA, userB string) (string, *errs.CustomError) {
	if userA == "" || userB == "" || userA == userB {
		return "", errs.NewError(errs.ErrInvalidParticipants)
	}

	low, high := userA, userB
	if low > high {
		low, high = high, low
	}

	id, created, err := r.store.GetOrCreateConversation(ctx, randx.ConversationID(), low, high)
	if err != nil {
		r.logger.Error().Err(err).Msg("Conversation create-or-fetch failed.")
		return "", errs.NewError(errs.ErrPersistence)
	}

	if created {
		r.logger.Info().
			Str("conversation_id", id).
			Msg("Conversation created on first contact.")
	}

	return id, nil
}

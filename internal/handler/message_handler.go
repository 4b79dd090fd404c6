/*
Package handler provides HTTP handler functions for conversations and messages.

The REST surface here is a fallback and bootstrap path: sends go through the same
Message Router operation as the realtime channel, and history fetches flip read
flags exactly the way a realtime client's fetch would.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// HandleListConversations returns every conversation the caller participates in,
// newest activity first, with the peer's username and the caller's unread count.
func HandleListConversations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversations, err := deps.Store.ListConversations(r.Context(), identity.UserID)
		if err != nil {
			logx.Error(err, "conversation list query failed", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistence))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"conversations": conversations,
		})
	}
}

// HandleGetMessages returns the full history of one conversation and marks the
// messages addressed to the caller as read.
func HandleGetMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversationID := chi.URLParam(r, "conversationID")
		if conversationID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		messages, customErr := deps.Router.History(r.Context(), conversationID, identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": messages,
		})
	}
}

type SendMessageInput struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// HandleSendMessage accepts a message over plain HTTP. It drives the same router
// operation as the realtime SEND_MESSAGE event; recipients that are online still
// receive the live NEW_MESSAGE push.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.RecipientID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		result, customErr := deps.Router.Send(r.Context(), identity.UserID, input.RecipientID, input.Content)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, result)
	}
}

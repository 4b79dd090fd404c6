/*
Package handler provides HTTP handler functions for user profile and discovery.
*/
package handler

import (
	"net/http"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

const searchResultLimit = 10

// HandleGetMe returns the current authenticated user's profile.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		account, err := deps.Store.GetUserByID(r.Context(), identity.UserID)
		if err != nil {
			logx.Warn("get_me: user not found", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": account,
		})
	}
}

// HandleSearchUsers finds users by username, case-insensitively, excluding the caller.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		query := r.URL.Query().Get("q")
		if query == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		users, err := deps.Store.SearchUsers(r.Context(), query, identity.UserID, searchResultLimit)
		if err != nil {
			logx.Error(err, "user search failed", "query", query)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistence))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users": users,
		})
	}
}

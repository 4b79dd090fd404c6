package handler

import (
	"dmchat/internal/app/chat"
	"dmchat/internal/app/store"
	"dmchat/internal/configs"
)

// AppDeps bundles the long-lived collaborators every handler needs.
type AppDeps struct {
	Hub    *chat.Hub
	Router *chat.Router
	Store  *store.Store
	Config *configs.AppConfig
}

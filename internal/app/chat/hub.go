/*
Package chat contains the presence and message-routing core.

This file defines the Hub, the single process-wide owner of the presence Registry.
It broadcasts presence transitions to every bound connection and performs the
fire-and-forget push delivery used by the Message Router.
*/
package chat

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// Hub owns the presence Registry and fans presence events and pushes out to live
// connections. It is created empty at process start and discarded on shutdown;
// there is no persisted presence state.
type Hub struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewHub constructs a Hub with an empty registry.
func NewHub() *Hub {
	h := &Hub{
		logger: logx.Logger().With().Str("component", "Hub").Logger(),
	}
	h.registry = NewRegistry(h.broadcastStatus)
	return h
}

// Registry exposes the presence registry for lookups.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// BindClient binds the client's connection to userID in the registry; the
// registry broadcasts the online transition as part of the same atomic step.
func (h *Hub) BindClient(c *Client, userID string) {
	evicted := h.registry.Bind(c, userID)
	if evicted != nil {
		// Replaced connections are not closed here; they stay open, unbound,
		// and get cleaned up by their own disconnect.
		h.logger.Info().
			Str("user_id", userID).
			Str("stale_conn_id", evicted.id).
			Msg("Existing binding replaced by new connection.")
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("conn_id", c.id).
		Int("online_users", h.registry.OnlineCount()).
		Msg("User bound.")
}

// UnbindClient removes the client's binding, if it still holds one. The registry
// broadcasts the offline transition atomically with the removal, so an unbind
// racing an in-flight push can never corrupt the mapping.
func (h *Hub) UnbindClient(c *Client) {
	userID, ok := h.registry.Unbind(c)
	if !ok {
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("conn_id", c.id).
		Int("online_users", h.registry.OnlineCount()).
		Msg("User unbound.")
}

// Push attempts a fire-and-forget delivery of the event to the user's live
// connection. It reports false when the user is offline or the connection's
// queue rejected the event; the caller never treats that as an error.
func (h *Hub) Push(userID string, eventType EventType, payload any) bool {
	c, ok := h.registry.LookupConnection(userID)
	if !ok {
		return false
	}

	ev, err := NewEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to build push event.")
		return false
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to marshal push event.")
		return false
	}

	return c.enqueue(raw)
}

// broadcastStatus emits a USER_STATUS event to every bound connection. It runs
// under the registry lock so successive transitions of one user reach each
// observer's queue in the order they occurred; enqueue never blocks, a full or
// closing connection simply misses the event.
func (h *Hub) broadcastStatus(userID string, online bool, bound []*Client) {
	status := StatusOffline
	if online {
		status = StatusOnline
	}

	ev, err := NewEvent(TypeUserStatus, UserStatusPayload{UserID: userID, Status: status})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build USER_STATUS event.")
		return
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal USER_STATUS event.")
		return
	}

	for _, c := range bound {
		c.enqueue(raw)
	}
}

// Shutdown closes the send queue of every bound connection, letting their write
// pumps terminate. Registry state is discarded with the process.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	for _, c := range h.registry.Bound() {
		c.closeSend()
	}

	h.logger.Info().Msg("Hub shutdown complete.")
}

/*
Package handler provides the WebSocket upgrade endpoint.

A fresh connection starts unauthenticated; identity is established afterwards by
the AUTHENTICATE event on the socket itself, not by this HTTP handler.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/chat"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

// HandleWebSocket upgrades the HTTP connection and starts the client's read and
// write pumps. The handler blocks in ReadPump for the lifetime of the connection.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	verify := func(token string) (string, error) {
		payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			return "", err
		}
		return payload.UserID, nil
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written its own HTTP error response.
			logx.Error(err, "WebSocket upgrade failed")
			return
		}

		client := chat.NewClient(deps.Hub, deps.Router, verify, conn)

		logx.Info("WebSocket connection established.", "conn_id", client.ID())

		go client.WritePump()
		client.ReadPump()
	}
}

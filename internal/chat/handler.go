package chat

import (
	"net/http"

	"github.com/gorilla/websocket"

	myMiddleware "chattour/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Terminal clients send no Origin; browsers are not a target.
	},
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWs upgrades the request and attaches a client to the hub. The caller
// is whoever the auth middleware put in the context, or anonymous.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	var caller Caller
	if userID, ok := r.Context().Value(myMiddleware.UserKey).(int); ok {
		caller.UserID = userID
		caller.Username, _ = r.Context().Value(myMiddleware.UsernameKey).(string)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Caller: caller,
	}
	if !send(h.hub, h.hub.Register, client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

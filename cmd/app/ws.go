package main

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// browser clients connect from the table QR page; origin enforcement
	// belongs to the reverse proxy in this deployment
	CheckOrigin: func(r *http.Request) bool { return true },
}

// readUntilClosed drains inbound frames until the peer goes away. Clients
// never send anything meaningful; the read loop only detects disconnects.
func readUntilClosed(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

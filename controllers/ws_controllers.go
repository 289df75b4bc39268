package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ichikitsu-lab/OrderingSystem/hub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // API hanya dibuka di loopback terminal
	},
}

// UIStreamHandler -> endpoint websocket untuk push ke UI shell
func UIStreamHandler(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		h.RegisterClient(ws)

		// UI tidak mengirim apa-apa; baca hanya untuk mendeteksi close
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		h.UnregisterClient(ws)
	}
}

package hub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// Event types yang dikirim ke UI shell
const (
	EventTableUpdate     = "table_update"
	EventTableDelete     = "table_delete"
	EventOrderUpdate     = "order_update"
	EventOrderDelete     = "order_delete"
	EventMenuUpdate      = "menu_update"
	EventHistoryUpdate   = "history_update"
	EventConflictNotice  = "conflict_notice"
	EventNotice          = "notice"
	EventConnectionState = "connection_state"
	EventStateSync       = "state_sync"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub menampung koneksi websocket milik UI shell di terminal ini dan
// menyiarkan setiap perubahan mirror supaya layar langsung re-render.
type Hub struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func New() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// RegisterClient -> menambahkan connection ke set
func (h *Hub) RegisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = true
}

// UnregisterClient -> melepaskan connection
func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

// Publish menyiarkan satu event ke semua client UI.
func (h *Hub) Publish(event string, data interface{}) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	raw, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling hub message: %v", err)
		return
	}

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			utils.ErrorLogger.Printf("Error sending message to UI client: %v", err)
			continue
		}
	}
}

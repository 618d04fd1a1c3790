package collabservice

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coderoom-core/internal/eventbus"
)

// ActivityFeed streams room lifecycle events from the event bus to
// dashboard websockets. A room_id query parameter narrows the feed to one room.
type ActivityFeed struct {
	clients map[*websocket.Conn]string // conn -> room filter
	mutex   sync.Mutex
}

func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{
		clients: make(map[*websocket.Conn]string),
	}
}

func (f *ActivityFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade activity connection: %v", err)
		return
	}
	defer conn.Close()

	f.mutex.Lock()
	f.clients[conn] = r.URL.Query().Get("room_id")
	f.mutex.Unlock()

	// The feed is one-way; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			f.mutex.Lock()
			delete(f.clients, conn)
			f.mutex.Unlock()
			return
		}
	}
}

// Publish forwards ev to every matching subscriber.
func (f *ActivityFeed) Publish(ev eventbus.Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to encode activity event: %v", err)
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	for conn, room := range f.clients {
		if room != "" && room != ev.RoomID {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("Failed to send activity to client: %v", err)
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// Len is the number of subscribers.
func (f *ActivityFeed) Len() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.clients)
}

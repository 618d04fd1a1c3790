package collabservice

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coderoom-core/internal/session"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1 << 20
	defaultOutboxSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks belong to the identity gateway in front of us.
		return true
	},
}

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// client is one websocket connection of one verified user.
type client struct {
	id   string
	user session.User
	conn *websocket.Conn

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	rooms map[string]bool // joined rooms; read loop only
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// enqueue queues msg without blocking. A client whose outbox is full is
// disconnected rather than allowed to stall a room.
func (c *client) enqueue(msg []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		log.Printf("Client %s (%s) outbox full, disconnecting", c.id, c.user.ID)
		c.shutdown()
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.shutdown()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("Failed to send message to client %s: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Hub tracks live connections and implements session.Broadcaster.
type Hub struct {
	mutex      sync.RWMutex
	clients    map[string]*client
	outboxSize int
}

var _ session.Broadcaster = (*Hub)(nil)

func NewHub(outboxSize int) *Hub {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	return &Hub{
		clients:    make(map[string]*client),
		outboxSize: outboxSize,
	}
}

func (h *Hub) register(conn *websocket.Conn, user session.User) *client {
	c := &client{
		id:     uuid.NewString(),
		user:   user,
		conn:   conn,
		send:   make(chan []byte, h.outboxSize),
		closed: make(chan struct{}),
		rooms:  make(map[string]bool),
	}
	h.mutex.Lock()
	h.clients[c.id] = c
	h.mutex.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mutex.Lock()
	delete(h.clients, c.id)
	h.mutex.Unlock()
	c.shutdown()
}

// Send delivers ev to the connection, dropping it if the connection is gone.
func (h *Hub) Send(connectionID string, ev session.Event) {
	h.mutex.RLock()
	c, ok := h.clients[connectionID]
	h.mutex.RUnlock()
	if !ok {
		return
	}
	msg, err := encode(ev.Name, ev.Data)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", ev.Name, err)
		return
	}
	c.enqueue(msg)
}

// Len is the number of connected clients.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mutex.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()
	for _, c := range clients {
		c.shutdown()
	}
}

func encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// identify reads the identity the gateway attached to the upgrade request.
// Query parameters are consulted only when allowQuery is set, since anything
// the gateway forwards in the URL is client-controlled.
func identify(r *http.Request, allowQuery bool) (session.User, bool) {
	user := session.User{
		ID:          r.Header.Get("X-User-ID"),
		DisplayName: r.Header.Get("X-User-Name"),
		Avatar:      r.Header.Get("X-User-Avatar"),
	}
	if allowQuery {
		q := r.URL.Query()
		if user.ID == "" {
			user.ID = q.Get("user_id")
		}
		if user.DisplayName == "" {
			user.DisplayName = q.Get("name")
		}
		if user.Avatar == "" {
			user.Avatar = q.Get("avatar")
		}
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	return user, user.ID != ""
}

// HandleWebSocket upgrades an authenticated request and serves it until the
// peer disconnects.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := identify(r, s.cfg.QueryIdentity)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	c := s.hub.register(conn, user)
	go c.writeLoop()
	log.Printf("Client %s connected as %s", c.id, user.ID)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Client %s read error: %v", c.id, err)
			}
			break
		}
		s.dispatch(r.Context(), c, message)
	}

	s.disconnect(r.Context(), c)
	log.Printf("Client %s disconnected", c.id)
}

package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	hubWriteTimeout = 10 * time.Second
	hubSendBuffer   = 32
)

// Hub pushes events to connected websocket observers. A client that cannot
// keep up is dropped rather than allowed to stall the others.
type Hub struct {
	logPrefix string
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logPrefix string) *Hub {
	return &Hub{
		logPrefix: logPrefix,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: map[*hubClient]struct{}{},
	}
}

// ServeHTTP upgrades an observer connection and streams events to it until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("%s websocket upgrade failed: err=%v", h.logPrefix, err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()

	// Observers are write-only; the read loop exists to notice disconnects
	// and process control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *Hub) Broadcast(sessionID, eventType string, payload any) {
	body, err := json.Marshal(Event{
		SessionID: sessionID,
		Type:      eventType,
		Payload:   payload,
		At:        time.Now(),
	})
	if err != nil {
		log.Printf("%s hub marshal failed: type=%s err=%v", h.logPrefix, eventType, err)
		return
	}

	h.mu.Lock()
	var slow []*hubClient
	for c := range h.conns {
		select {
		case c.send <- body:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		log.Printf("%s dropping slow observer", h.logPrefix)
		h.drop(c)
	}
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*hubClient, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.drop(c)
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	_, ok := h.conns[c]
	if ok {
		delete(h.conns, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
		_ = c.conn.Close()
	}
}

func (c *hubClient) writeLoop() {
	for body := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		time.Now().Add(time.Second))
}

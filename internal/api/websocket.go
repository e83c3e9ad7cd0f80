package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"turbofire/internal/input"
	"turbofire/internal/protocol"
	"turbofire/internal/turbo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Only pages served by this instance may connect
	CheckOrigin: allowedOrigin,
}

// WSManager handles WebSocket connections and broadcasts engine events.
// It implements turbo.Listener.
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan hubEvent
	unregister chan *WebSocketClient
	shutdown   chan struct{}
	closeOnce  sync.Once
}

// hubEvent is either a broadcast or, when client is set, the registration of
// client with its initial snapshot. Both travel through one channel so a new
// client sees exactly the events that follow its snapshot.
type hubEvent struct {
	message protocol.Message
	client  *WebSocketClient
}

// WebSocketClient represents a connected watcher
type WebSocketClient struct {
	id      string
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan hubEvent, 256),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	for {
		select {
		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Printf("WS: Client %s unregistered. Total clients: %d", client.id, len(m.clients))
			}
			m.clientsMu.Unlock()

		case ev := <-m.broadcast:
			if ev.client != nil {
				m.addClient(ev.client, ev.message)
				continue
			}
			m.broadcastMessage(ev.message)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) drainBroadcast() {
	for {
		select {
		case ev := <-m.broadcast:
			if ev.client != nil {
				m.addClient(ev.client, ev.message)
				continue
			}
			m.broadcastMessage(ev.message)
		default:
			return
		}
	}
}

func (m *WSManager) close() {
	m.closeOnce.Do(func() { close(m.shutdown) })
}

// ClientCount returns the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal broadcast message: %v", err)
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			// Slow consumer: drop it rather than stall every other client.
			close(client.send)
			delete(m.clients, client)
			log.Printf("WS: Client %s dropped, send buffer full", client.id)
		}
	}
}

// sendTo queues a message for one client if it is still registered.
func (m *WSManager) sendTo(client *WebSocketClient, message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal message: %v", err)
		return
	}

	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	if !m.clients[client] {
		return
	}
	select {
	case client.send <- jsonMsg:
	default:
	}
}

// publish hands ev to the hub. The hub never calls into the engine, so this
// cannot block an engine notification indefinitely.
func (m *WSManager) publish(ev hubEvent) bool {
	select {
	case m.broadcast <- ev:
		return true
	case <-m.shutdown:
		return false
	}
}

func (m *WSManager) publishMessage(message protocol.Message) {
	m.publish(hubEvent{message: message})
}

func (m *WSManager) DesignationPending() {
	m.publishMessage(protocol.Message{Type: protocol.TypeDesignationPending})
}

func (m *WSManager) TriggerChanged(in input.LogicalInput) {
	m.publishMessage(protocol.Message{
		Type:    protocol.TypeTriggerChanged,
		Payload: protocol.TriggerPayload{Trigger: in.String()},
	})
}

func (m *WSManager) BindingAdded(b turbo.BindingInfo) {
	m.publishMessage(protocol.Message{Type: protocol.TypeBindingAdded, Payload: toPayload(b)})
}

func (m *WSManager) BindingRemoved(in input.LogicalInput) {
	m.publishMessage(protocol.Message{
		Type:    protocol.TypeBindingRemoved,
		Payload: protocol.RemovePayload{Input: in.String()},
	})
}

func (m *WSManager) IntervalChanged(b turbo.BindingInfo) {
	m.publishMessage(protocol.Message{Type: protocol.TypeIntervalChanged, Payload: toPayload(b)})
}

func (m *WSManager) RunningChanged(b turbo.BindingInfo) {
	m.publishMessage(protocol.Message{Type: protocol.TypeRunningChanged, Payload: toPayload(b)})
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		id:      uuid.NewString(),
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	registered := false
	m.server.engine.WithSnapshot(func(snap turbo.Snapshot) {
		registered = m.publish(hubEvent{
			client:  client,
			message: protocol.Message{Type: protocol.TypeSnapshot, Payload: toSnapshotPayload(snap, client.id)},
		})
	})
	if !registered {
		conn.Close()
		return
	}

	// Start pump goroutines
	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the engine.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS: Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("WS: Invalid message format: %v", err)
		return
	}

	if err := c.apply(msg); err != nil {
		log.Printf("WS: %s from %s failed: %v", msg.Type, c.id, err)
		c.manager.sendTo(c, protocol.Message{
			Type:    protocol.TypeError,
			ID:      msg.ID,
			Payload: protocol.ErrorPayload{Command: msg.Type, Error: err.Error()},
		})
	}
}

var errUnknownCommand = errors.New("unknown command")

func (c *WebSocketClient) apply(msg protocol.Message) error {
	engine := c.manager.server.engine

	switch msg.Type {
	case protocol.TypePing:
		return nil

	case protocol.TypeDesignate:
		engine.RequestDesignation()
		return nil

	case protocol.TypeSetInterval:
		var payload protocol.SetIntervalPayload
		if err := protocol.DecodePayload(msg, &payload); err != nil {
			return err
		}
		in, err := input.Parse(payload.Input)
		if err != nil {
			return err
		}
		_, err = engine.EditInterval(in, payload.IntervalMs)
		return err

	case protocol.TypeRemove:
		var payload protocol.RemovePayload
		if err := protocol.DecodePayload(msg, &payload); err != nil {
			return err
		}
		in, err := input.Parse(payload.Input)
		if err != nil {
			return err
		}
		return engine.RemoveBinding(in)
	}

	return errUnknownCommand
}

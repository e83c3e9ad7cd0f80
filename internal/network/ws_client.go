package network

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"turbofire/internal/protocol"
)

// WSClient follows the event stream of a running instance and reconnects
// when the connection drops.
type WSClient struct {
	hostAddr string
	token    string
	send     chan protocol.Message
	done     chan struct{}
	closed   sync.Once

	// RetryDelay is the pause between reconnection attempts.
	RetryDelay time.Duration

	// Callbacks, set before Start.
	OnConnect func()
	OnMessage func(msg protocol.Message)

	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
}

// NewWSClient creates a new WebSocket client for hostAddr (host:port).
func NewWSClient(hostAddr, token string) *WSClient {
	return &WSClient{
		hostAddr:   hostAddr,
		token:      token,
		send:       make(chan protocol.Message, 100),
		done:       make(chan struct{}),
		RetryDelay: 5 * time.Second,
	}
}

// Start begins the client loop (connect & process)
func (c *WSClient) Start() {
	go c.loop()
}

func (c *WSClient) loop() {
	for {
		c.connect()

		// If connect returns, it means we disconnected. Wait a bit and retry.
		select {
		case <-c.done:
			return
		case <-time.After(c.RetryDelay):
			log.Println("WS Client: Attempting reconnection...")
		}
	}
}

func (c *WSClient) connect() {
	u := url.URL{Scheme: "ws", Host: c.hostAddr, Path: "/ws"}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Printf("WS Client: Connection failed: %v", err)
		return
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	log.Printf("WS Client: Connected to %s", u.String())
	if c.OnConnect != nil {
		c.OnConnect()
	}

	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		c.writePump(conn)
	}()

	c.readPump(conn)

	// Cleanup
	c.mu.Lock()
	c.isConnected = false
	c.conn = nil
	c.mu.Unlock()

	// Ensure write pump stops
	conn.Close()
	<-connDone
}

func (c *WSClient) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
	// The server pings every 50s; answering refreshes the deadline too.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WS Client: Read error: %v", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WS Client: Invalid message: %v", err)
			continue
		}

		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

func (c *WSClient) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second) // Ping ticker
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("WS Client: Write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (c *WSClient) enqueue(msg protocol.Message) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

// SendDesignate asks the instance to wait for a new trigger input.
func (c *WSClient) SendDesignate() {
	c.enqueue(protocol.Message{Type: protocol.TypeDesignate})
}

// SendSetInterval edits the interval of a binding.
func (c *WSClient) SendSetInterval(input string, intervalMs int) {
	c.enqueue(protocol.Message{
		Type:    protocol.TypeSetInterval,
		Payload: protocol.SetIntervalPayload{Input: input, IntervalMs: intervalMs},
	})
}

// SendRemove removes a binding.
func (c *WSClient) SendRemove(input string) {
	c.enqueue(protocol.Message{
		Type:    protocol.TypeRemove,
		Payload: protocol.RemovePayload{Input: input},
	})
}

// IsConnected returns true if client is connected
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the client
func (c *WSClient) Close() {
	c.closed.Do(func() { close(c.done) })
}

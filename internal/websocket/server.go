package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// Message types exchanged with dashboard clients
const (
	MessageTypeState         = "rwsl_state"     // Server pushes the full cycle output
	MessageTypeConflictAlert = "conflict_alert" // Server pushes a newly detected conflict
	MessageTypeFilterUpdate  = "filter_update"  // Client sends filter preferences
	MessageTypeStateRequest  = "state_request"  // Client asks for the latest state
	MessageTypeError         = "error"
)

// Encodings a client can ask for with ?encoding=
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type" msgpack:"type"`
	Data map[string]any `json:"data" msgpack:"data"`
}

// StateMessage wraps a cycle output for broadcasting
func StateMessage(out rwsl.Output) *Message {
	return &Message{
		Type: MessageTypeState,
		Data: map[string]any{
			"timestamp": out.Timestamp,
			"lights":    out.Lights,
			"conflicts": out.Conflicts,
			"occupancy": out.Occupancy,
			"aircraft":  out.Aircraft,
			"health":    out.Health,
		},
	}
}

// ConflictAlertMessage wraps a single conflict for broadcasting
func ConflictAlertMessage(ev rwsl.ConflictEvent) *Message {
	return &Message{
		Type: MessageTypeConflictAlert,
		Data: map[string]any{"conflict": ev},
	}
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
}

// ClientFilters narrows what a client receives. Empty runway set means every runway.
type ClientFilters struct {
	RunwayIDs   map[string]bool `json:"runways"`
	MinSeverity rwsl.Severity   `json:"min_severity"`
}

func (f *ClientFilters) runway(id string) bool {
	if f == nil || len(f.RunwayIDs) == 0 || id == "" {
		return true
	}
	return f.RunwayIDs[id]
}

func (f *ClientFilters) conflict(ev rwsl.ConflictEvent) bool {
	if f == nil {
		return true
	}
	if f.MinSeverity != "" && ev.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if len(f.RunwayIDs) == 0 || len(ev.RunwayIDs) == 0 {
		return true
	}
	for _, id := range ev.RunwayIDs {
		if f.RunwayIDs[id] {
			return true
		}
	}
	return false
}

// Client represents a WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
	filters   *ClientFilters
	binary    bool
}

// Server represents a WebSocket server
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	done           chan struct{}
	upgrader       websocket.Upgrader
	sendBuffer     int
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
}

// NewServer creates a new WebSocket server
func NewServer(sendBuffer int, log *logger.Logger) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		sendBuffer: sendBuffer,
		logger:     log.Named("web-socket"),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// ClientCount returns the number of registered clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Run runs the hub until ctx is cancelled
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				s.closeSend(client)
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				s.closeSend(client)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				client.mu.Lock()
				closed := client.closed
				filters := client.filters
				client.mu.Unlock()
				if closed {
					clientsToRemove = append(clientsToRemove, client)
					continue
				}

				filtered := filterMessage(filters, message)
				if filtered == nil {
					continue
				}

				select {
				case client.send <- filtered:
				default:
					// Slow consumer
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						s.closeSend(client)
					}
				}
				s.mu.Unlock()
				s.logger.Warn("Dropped clients", logger.Int("count", len(clientsToRemove)))
			}
		}
	}
}

// closeSend marks a client closed and closes its send channel once
func (s *Server) closeSend(client *Client) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.closed {
		client.closed = true
	}
	select {
	case <-client.closeChan:
	default:
		close(client.closeChan)
	}
}

// HandleConnection upgrades the request and registers the client. ?encoding=msgpack
// switches the client to binary msgpack frames.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	binary := r.URL.Query().Get("encoding") == EncodingMsgpack

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Accepted WebSocket connection",
		logger.String("remote_addr", r.RemoteAddr),
		logger.Bool("msgpack", binary))

	client := &Client{
		conn:      conn,
		send:      make(chan *Message, s.sendBuffer),
		server:    s,
		closeChan: make(chan struct{}),
		binary:    binary,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast sends a message to all connected clients, applying their filters
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	case <-s.done:
	}
}

// filterMessage returns the message as a client with these filters should see it, or
// nil when nothing in it is of interest
func filterMessage(f *ClientFilters, message *Message) *Message {
	if f == nil {
		return message
	}
	switch message.Type {
	case MessageTypeConflictAlert:
		ev, ok := message.Data["conflict"].(rwsl.ConflictEvent)
		if ok && !f.conflict(ev) {
			return nil
		}
		return message

	case MessageTypeState:
		data := make(map[string]any, len(message.Data))
		for k, v := range message.Data {
			data[k] = v
		}
		if lights, ok := message.Data["lights"].(map[string]rwsl.LightState); ok {
			kept := make(map[string]rwsl.LightState, len(lights))
			for id, st := range lights {
				if f.runway(st.RunwayID) {
					kept[id] = st
				}
			}
			data["lights"] = kept
		}
		if conflicts, ok := message.Data["conflicts"].([]rwsl.ConflictEvent); ok {
			kept := make([]rwsl.ConflictEvent, 0, len(conflicts))
			for _, ev := range conflicts {
				if f.conflict(ev) {
					kept = append(kept, ev)
				}
			}
			data["conflicts"] = kept
		}
		if occupancy, ok := message.Data["occupancy"].([]rwsl.RunwayOccupancy); ok {
			kept := make([]rwsl.RunwayOccupancy, 0, len(occupancy))
			for _, occ := range occupancy {
				if f.runway(occ.RunwayID) {
					kept = append(kept, occ)
				}
			}
			data["occupancy"] = kept
		}
		return &Message{Type: message.Type, Data: data}
	}
	return message
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		frameType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var message Message
		if frameType == websocket.BinaryMessage {
			err = msgpack.Unmarshal(messageBytes, &message)
		} else {
			err = json.Unmarshal(messageBytes, &message)
		}
		if err != nil {
			c.server.logger.Warn("Failed to parse WebSocket message", logger.Error(err))
			c.SendMessage(&Message{Type: MessageTypeError, Data: map[string]any{"error": "malformed message"}})
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client", c.conn.RemoteAddr().String()))

		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					logger.Error(err),
					logger.String("type", message.Type))
				c.SendMessage(&Message{Type: MessageTypeError, Data: map[string]any{"error": err.Error()}})
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			frameType, data, err := c.encode(message)
			if err != nil {
				c.server.logger.Error("Failed to encode message",
					logger.Error(err),
					logger.String("type", message.Type))
				continue
			}
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				return
			}

		case <-c.closeChan:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) encode(message *Message) (int, []byte, error) {
	if c.binary {
		data, err := msgpack.Marshal(message)
		return websocket.BinaryMessage, data, err
	}
	data, err := json.Marshal(message)
	return websocket.TextMessage, data, err
}

// SendMessage sends a message to this specific client, applying its filters. It
// reports false when the client is closed or its buffer is full.
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	filtered := filterMessage(c.filters, message)
	if filtered == nil {
		return true
	}

	select {
	case c.send <- filtered:
		return true
	default:
		return false
	}
}

// UpdateFilters replaces the client's active filters
func (c *Client) UpdateFilters(filters *ClientFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// GetFilters returns a copy of the client's current filters
func (c *Client) GetFilters() *ClientFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filters == nil {
		return nil
	}
	filtersCopy := &ClientFilters{
		RunwayIDs:   make(map[string]bool, len(c.filters.RunwayIDs)),
		MinSeverity: c.filters.MinSeverity,
	}
	for id, on := range c.filters.RunwayIDs {
		filtersCopy.RunwayIDs[id] = on
	}
	return filtersCopy
}

package services

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans realtime events out to every browser viewing a session: the
// admin console, the presenter view and each participant.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	sessionService *SessionService
}

type Client struct {
	hub         *Hub
	id          string
	socket      *websocket.Conn
	send        chan []byte
	sessionCode string
	viewerID    uint // participant id, or 0 for the session admin
	viewerName  string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ChangeEvent is the payload broadcast on every accepted lifecycle
// transition: which entity changed, and its new state.
type ChangeEvent struct {
	Entity string      `json:"entity"`
	ID     uint        `json:"id"`
	State  string      `json:"state"`
	Data   interface{} `json:"data,omitempty"`
}

func NewHub(sessionService *SessionService) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		sessionService: sessionService,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client registered: %s for session %s (viewer %d: %s) - Total clients: %d", client.id, client.sessionCode, client.viewerID, client.viewerName, len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Client unregistered: %s for session %s (viewer %d: %s) - Total clients: %d", client.id, client.sessionCode, client.viewerID, client.viewerName, len(h.clients))

				if client.viewerID == 0 {
					// Admin tab closed. Sessions only move forward, so a
					// dropped connection never ends one; remaining viewers
					// keep the last broadcast state.
					log.Printf("Admin disconnected from session %s", client.sessionCode)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// BroadcastToSession sends a typed JSON message to every client viewing
// the session identified by code.
func (h *Hub) BroadcastToSession(sessionCode string, messageType string, payload interface{}) {
	message := Message{
		Type:    messageType,
		Payload: payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mutex.Lock()
	sent := 0
	for client := range h.clients {
		if strings.EqualFold(client.sessionCode, sessionCode) {
			select {
			case client.send <- data:
				sent++
			default:
				close(client.send)
				delete(h.clients, client)
			}
		}
	}
	h.mutex.Unlock()

	log.Printf("Broadcast %s to %d clients in session %s", messageType, sent, sessionCode)
}

// BroadcastChange emits the controller's change event for an accepted
// transition.
func (h *Hub) BroadcastChange(sessionCode string, entity string, id uint, state string, data interface{}) {
	h.BroadcastToSession(sessionCode, "change", ChangeEvent{
		Entity: entity,
		ID:     id,
		State:  state,
		Data:   data,
	})
}

func (h *Hub) SendStateSync(client *Client) {
	if h.sessionService == nil {
		return
	}

	state, err := h.sessionService.GetSessionState(client.sessionCode)
	if err != nil {
		log.Printf("Error getting session state for client %s: %v", client.id, err)
		return
	}

	message := Message{
		Type:    "state_sync",
		Payload: state,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling state sync message: %v", err)
		return
	}

	h.mutex.Lock()
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
	}
	h.mutex.Unlock()
}

// GetConnectedViewers lists the viewer ids currently connected to a session.
func (h *Hub) GetConnectedViewers(sessionCode string) []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var viewerIDs []uint
	for client := range h.clients {
		if strings.EqualFold(client.sessionCode, sessionCode) {
			viewerIDs = append(viewerIDs, client.viewerID)
		}
	}
	return viewerIDs
}

func (h *Hub) IsViewerConnected(sessionCode string, viewerID uint) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if strings.EqualFold(client.sessionCode, sessionCode) && client.viewerID == viewerID {
			return true
		}
	}
	return false
}

func (h *Hub) RegisterClient(conn *websocket.Conn, sessionCode string, viewerID uint, viewerName string) *Client {
	client := &Client{
		hub:         h,
		id:          generateClientID(),
		socket:      conn,
		send:        make(chan []byte, 256),
		sessionCode: strings.ToLower(sessionCode),
		viewerID:    viewerID,
		viewerName:  viewerName,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}

		w.Write(message)

		if err := w.Close(); err != nil {
			return
		}
	}

	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response := Message{
			Type:    "pong",
			Payload: "pong",
		}
		data, _ := json.Marshal(response)
		c.send <- data

	case "request_state":
		log.Printf("Viewer %d (%s) requesting state for session %s", c.viewerID, c.viewerName, c.sessionCode)
		c.hub.SendStateSync(c)

	default:
		log.Printf("Unknown message type: %s from viewer %d (%s) in session %s", msg.Type, c.viewerID, c.viewerName, c.sessionCode)
	}
}

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}

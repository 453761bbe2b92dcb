package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/consumer"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outgoing messages buffered per client before new ones are dropped
	clientSendBuffer = 256
)

// Topics a client can subscribe to.
var validTopics = []string{
	consumer.TopicChainState,
	consumer.TopicBlockStats,
	consumer.TopicFees,
}

// WSMessage is a message sent to WebSocket clients
type WSMessage struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data,omitempty"`
	Time  int64       `json:"timestamp"`
}

// WSSubscribeRequest is a client request to change its subscriptions
type WSSubscribeRequest struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// WSClient is a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan []byte

	mu            sync.Mutex
	subscriptions map[string]bool
	closed        bool
}

// writeMessage queues msg for the client without blocking. Messages are
// dropped when the client's buffer is full or it has disconnected.
func (c *WSClient) writeMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[topic]
}

func (c *WSClient) setSubscribed(topics []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		if on {
			c.subscriptions[topic] = true
		} else {
			delete(c.subscriptions, topic)
		}
	}
}

func (c *WSClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.subscriptions))
	for _, topic := range validTopics {
		if c.subscriptions[topic] {
			topics = append(topics, topic)
		}
	}
	return topics
}

// close stops further writes and ends the write pump.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handleWebSocket upgrades the connection and streams store updates. The
// optional topic query parameter, repeatable, limits the initial
// subscriptions; without it the client receives every topic.
func (s *Server) handleWebSocket(c *gin.Context) {
	initial := c.QueryArray("topic")
	if len(initial) == 0 {
		initial = validTopics
	}
	for _, topic := range initial {
		if !isValidTopic(topic) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "Unknown topic " + topic,
				"topics": validTopics,
			})
			return
		}
	}

	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:          conn,
		send:          make(chan []byte, clientSendBuffer),
		subscriptions: make(map[string]bool),
	}
	client.setSubscribed(initial, true)

	s.registerClient(client)
	client.writeMessage(WSMessage{
		Type:  "connected",
		Topic: "system",
		Data:  gin.H{"topics": client.topics()},
		Time:  time.Now().Unix(),
	})

	go s.writePump(client)
	s.readPump(client)
}

// readPump handles subscription requests until the connection fails.
func (s *Server) readPump(client *WSClient) {
	defer func() {
		s.unregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.logger.Debug("Invalid WebSocket request", zap.Error(err))
			continue
		}
		s.handleSubscribeRequest(client, req)
	}
}

func (s *Server) handleSubscribeRequest(client *WSClient, req WSSubscribeRequest) {
	var topics []string
	for _, topic := range req.Topics {
		if !isValidTopic(topic) {
			s.logger.Warn("Ignoring unknown WebSocket topic", zap.String("topic", topic))
			continue
		}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return
	}

	var reply string
	switch req.Action {
	case "subscribe":
		client.setSubscribed(topics, true)
		reply = "subscribed"
	case "unsubscribe":
		client.setSubscribed(topics, false)
		reply = "unsubscribed"
	default:
		s.logger.Warn("Ignoring unknown WebSocket action", zap.String("action", req.Action))
		return
	}

	client.writeMessage(WSMessage{
		Type:  reply,
		Topic: "system",
		Data:  gin.H{"topics": topics},
		Time:  time.Now().Unix(),
	})
}

// writePump is the only writer on the connection.
func (s *Server) writePump(client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pumpEvents relays store events to subscribed clients until the event
// subscription ends.
func (s *Server) pumpEvents() {
	defer close(s.pumpDone)
	for ev := range s.events.C() {
		s.broadcastEvent(ev)
	}
}

func (s *Server) broadcastEvent(ev consumer.Event) {
	msg := WSMessage{
		Type:  "update",
		Topic: ev.Topic,
		Data:  ev.Data,
		Time:  ev.Time.Unix(),
	}

	s.wsClientsMu.RLock()
	defer s.wsClientsMu.RUnlock()
	for client := range s.wsClients {
		if client.subscribed(ev.Topic) {
			client.writeMessage(msg)
		}
	}
}

func (s *Server) registerClient(client *WSClient) {
	s.wsClientsMu.Lock()
	s.wsClients[client] = true
	s.wsClientsMu.Unlock()
	s.logger.Debug("WebSocket client connected", zap.String("remote", client.conn.RemoteAddr().String()))
}

func (s *Server) unregisterClient(client *WSClient) {
	s.wsClientsMu.Lock()
	delete(s.wsClients, client)
	s.wsClientsMu.Unlock()
	client.close()
	s.logger.Debug("WebSocket client disconnected")
}

func (s *Server) closeAllClients() {
	s.wsClientsMu.Lock()
	defer s.wsClientsMu.Unlock()
	for client := range s.wsClients {
		client.close()
		delete(s.wsClients, client)
	}
}

func (s *Server) clientCount() int {
	s.wsClientsMu.RLock()
	defer s.wsClientsMu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origins := s.config.APICORSOrigins
	if len(origins) == 0 || containsString(origins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || containsString(origins, origin)
}

func isValidTopic(topic string) bool {
	return containsString(validTopics, topic)
}

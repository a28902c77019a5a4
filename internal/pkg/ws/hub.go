package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub 管理员实时审计连接，同一管理员可有多个连接
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.logger.Info("audit stream connected",
		zap.Int64("user_id", client.UserID),
		zap.Int("user_conns", len(h.clients[client.UserID])),
	)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.logger.Info("audit stream disconnected", zap.Int64("user_id", client.UserID))
}

// SendToUser 向指定管理员的所有连接推送
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	return h.deliver(msg, h.snapshot(func(id int64) bool { return id == userID }))
}

// Broadcast 向所有在线连接推送
func (h *Hub) Broadcast(msg *Message) error {
	return h.deliver(msg, h.snapshot(func(int64) bool { return true }))
}

// CloseAll 关闭全部连接，服务停机时调用
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.clients {
		for c := range conns {
			c.mu.Lock()
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			_ = c.Conn.Close()
			c.mu.Unlock()
		}
		delete(h.clients, userID)
	}
}

// snapshot 在读锁内复制目标连接，写出时不持有 hub 锁
func (h *Hub) snapshot(match func(userID int64) bool) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var clients []*Client
	for userID, conns := range h.clients {
		if !match(userID) {
			continue
		}
		for c := range conns {
			clients = append(clients, c)
		}
	}
	return clients
}

func (h *Hub) deliver(msg *Message, clients []*Client) error {
	if len(clients) == 0 {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.logger.Warn("audit stream write failed", zap.Int64("user_id", c.UserID), zap.Error(err))
		}
	}
	return nil
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Envelope websocket 消息信封（进出站统一格式）
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn 抽象 websocket 连接（便于单元测试替换）
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client 单个 websocket 连接
type Client struct {
	ID   string // 连接 id（传输会话 id，不是医生身份）
	Room string // 所属房间（医生 email），一个连接只属于一个房间
	Send chan []byte

	conn Conn
}

// Hub 房间化的连接管理器
// 房间名 = 医生身份；同一医生的多个标签页可以共存于一个房间
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *zap.Logger
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Join 把连接加入医生房间
func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 从旧房间摘除（换身份重连的防御路径，正常流程不会走到）
	if client.Room != "" && client.Room != room {
		if members, ok := h.rooms[client.Room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, client.Room)
			}
		}
	}

	client.Room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
}

// Leave 把连接从房间摘除并关闭其发送通道
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, in := members[client]; !in {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, client.Room)
	}
	close(client.Send)
}

// EmitToRoom 向房间内所有连接推送一条命名事件
// 发送即忘：连接缓冲满时丢弃该连接本次消息，不阻塞轮询器
func (h *Hub) EmitToRoom(room string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal event payload",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal event envelope",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		// 医生不在线：无缓冲、无重试
		return
	}
	for client := range members {
		select {
		case client.Send <- msg:
		default:
			// 缓冲满则跳过，避免阻塞
		}
	}
}

// RoomSize 房间内连接数
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount 全部连接数（健康检查与指标用）
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, members := range h.rooms {
		total += len(members)
	}
	return total
}

package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"wisefido-vitals/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 保活参数：pong 超时的连接按断开处理，半开连接不会一直挂着
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 身份由外部会话层保证，这里不做 Origin 校验
		return true
	},
}

// EventSink UI 事件的业务处理接口（由 service 层实现）
type EventSink interface {
	OnConnect(doctor models.DoctorIdentity, connectionID string)
	OnGetPatientData(doctor models.DoctorIdentity, patients []models.PatientRef)
	OnUserInfo(doctor models.DoctorIdentity, page string)
	OnRejoin(doctor models.DoctorIdentity, page string)
	OnDisconnect(doctor models.DoctorIdentity, connectionID string)
	OnSendPatientMessage(doctor models.DoctorIdentity, ev models.SendPatientMessageEvent)
}

// Handler websocket 网关
// 把 HTTP 升级成 websocket、维护读写泵，并把入站事件转给 EventSink
type Handler struct {
	hub    *Hub
	sink   EventSink
	logger *zap.Logger

	pingInterval time.Duration // 测试可缩短
}

// NewHandler 创建网关
func NewHandler(hub *Hub, sink EventSink, logger *zap.Logger) *Handler {
	return &Handler{
		hub:          hub,
		sink:         sink,
		logger:       logger,
		pingInterval: pingPeriod,
	}
}

// HandleConnect 处理 /ws 连接
// 医生身份来自外部身份层注入的 email 参数，核心按原样信任
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	doctor := models.DoctorIdentity(email)
	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
		conn: ws,
	}

	h.hub.Join(string(doctor), client)
	h.sink.OnConnect(doctor, client.ID)

	h.logger.Info("Doctor connected",
		zap.String("doctor", email),
		zap.String("connection_id", client.ID),
	)

	go h.writePump(client)
	go h.readPump(client, doctor)
}

// readPump 读取入站事件直到连接断开
func (h *Handler) readPump(client *Client, doctor models.DoctorIdentity) {
	defer func() {
		h.hub.Leave(client)
		client.conn.Close()
		h.sink.OnDisconnect(doctor, client.ID)
		h.logger.Info("Doctor disconnected",
			zap.String("doctor", string(doctor)),
			zap.String("connection_id", client.ID),
		)
	}()

	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			// 畸形消息：记日志后忽略，不改任何状态
			h.logger.Warn("Ignoring malformed websocket message",
				zap.String("doctor", string(doctor)),
				zap.Error(err),
			)
			continue
		}

		h.dispatchEvent(client, doctor, env)
	}
}

// dispatchEvent 把入站事件路由到 EventSink
func (h *Handler) dispatchEvent(client *Client, doctor models.DoctorIdentity, env Envelope) {
	switch env.Event {
	case models.EventGetPatientData:
		var ev models.GetPatientDataEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Email == "" {
			h.logger.Warn("Ignoring malformed get_patient_data event",
				zap.String("doctor", string(doctor)),
			)
			return
		}
		if !h.verifyIdentity(doctor, ev.Email, env.Event) {
			return
		}
		h.sink.OnGetPatientData(doctor, ev.Patients)

	case models.EventUserInfo, models.EventRejoin:
		var ev models.UserInfoEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Email == "" {
			h.logger.Warn("Ignoring malformed session event",
				zap.String("event", env.Event),
				zap.String("doctor", string(doctor)),
			)
			return
		}
		if !h.verifyIdentity(doctor, ev.Email, env.Event) {
			return
		}
		if env.Event == models.EventRejoin {
			h.sink.OnRejoin(doctor, ev.Page)
		} else {
			h.sink.OnUserInfo(doctor, ev.Page)
		}

	case models.EventSendPatientMessage:
		var ev models.SendPatientMessageEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.DeviceOwner == "" {
			h.logger.Warn("Ignoring malformed send_patient_message event",
				zap.String("doctor", string(doctor)),
			)
			return
		}
		h.sink.OnSendPatientMessage(doctor, ev)

	case "disconnect":
		// 显式 disconnect 等同关闭连接，readPump 的 defer 负责注销
		client.conn.Close()

	default:
		h.logger.Debug("Ignoring unknown event",
			zap.String("event", env.Event),
			zap.String("doctor", string(doctor)),
		)
	}
}

// verifyIdentity 事件内的 email 必须与连接绑定的身份一致
// 不一致视为越权操作：拒绝、记日志、不改状态
func (h *Handler) verifyIdentity(doctor models.DoctorIdentity, claimed string, event string) bool {
	if models.DoctorIdentity(claimed) == doctor {
		return true
	}
	h.logger.Warn("Rejecting event for mismatched identity",
		zap.String("event", event),
		zap.String("connection_doctor", string(doctor)),
		zap.String("claimed_doctor", claimed),
	)
	return false
}

// writePump 把 Send 通道里的消息写到连接，并周期性发 ping 探活
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				// Leave 关闭了发送通道
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/odissey/internal/models"
	"github.com/Corphon/odissey/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// TranscriptClient 订阅某个会话记录的连接
type TranscriptClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{} // Close 时关闭，通知 writePump 退出
	closed    int32         // 0=开启，1=关闭
	lastPing  atomic.Int64
	createdAt time.Time
}

func newTranscriptClient(conn *websocket.Conn, sessionID string) *TranscriptClient {
	client := &TranscriptClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 64),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.touch()
	return client
}

// Close 安全关闭客户端连接
func (client *TranscriptClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *TranscriptClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

func (client *TranscriptClient) touch() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *TranscriptClient) IsExpired(timeout time.Duration) bool {
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// TranscriptHub 按会话分发新写入的会话记录
// 只是输出通道，会话服务本身不知道它的存在
type TranscriptHub struct {
	connections map[string]map[*TranscriptClient]struct{}
	mutex       sync.RWMutex
	pingTimeout time.Duration
	metrics     *utils.MetricsCollector
	logger      *utils.Logger

	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

// NewTranscriptHub 创建会话记录推送中心并启动过期连接清理
func NewTranscriptHub(metrics *utils.MetricsCollector) *TranscriptHub {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	hub := &TranscriptHub{
		connections:   make(map[string]map[*TranscriptClient]struct{}),
		pingTimeout:   2 * pongWait,
		metrics:       metrics,
		logger:        utils.GetLogger(),
		cleanupTicker: time.NewTicker(30 * time.Second),
		done:          make(chan struct{}),
	}
	go hub.run()
	return hub
}

func (hub *TranscriptHub) run() {
	for {
		select {
		case <-hub.cleanupTicker.C:
			hub.cleanupExpiredConnections()
		case <-hub.done:
			return
		}
	}
}

func (hub *TranscriptHub) register(client *TranscriptClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.connections[client.sessionID] == nil {
		hub.connections[client.sessionID] = make(map[*TranscriptClient]struct{})
	}
	hub.connections[client.sessionID][client] = struct{}{}
	client.touch()
	hub.metrics.IncGauge(utils.MetricLiveSubscribers)
}

func (hub *TranscriptHub) unregister(client *TranscriptClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if clients, exists := hub.connections[client.sessionID]; exists {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			hub.metrics.DecGauge(utils.MetricLiveSubscribers)
		}
		if len(clients) == 0 {
			delete(hub.connections, client.sessionID)
		}
	}
	client.Close()
}

// cleanupExpiredConnections 清理过期和已关闭的连接
func (hub *TranscriptHub) cleanupExpiredConnections() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for sessionID, clients := range hub.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
				delete(clients, client)
				hub.metrics.DecGauge(utils.MetricLiveSubscribers)
				client.Close()
			}
		}
		if len(clients) == 0 {
			delete(hub.connections, sessionID)
		}
	}
}

// Subscribers 某个会话当前的订阅数
func (hub *TranscriptHub) Subscribers(sessionID string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.connections[sessionID])
}

// PublishChatLog 把新写入的记录推送给会话的订阅者，nil 条目跳过
func (hub *TranscriptHub) PublishChatLog(sessionID string, entries ...*models.ChatLog) {
	hub.mutex.RLock()
	clients := make([]*TranscriptClient, 0, len(hub.connections[sessionID]))
	for client := range hub.connections[sessionID] {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	hub.mutex.RUnlock()

	if len(clients) == 0 {
		return
	}

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		msg, err := json.Marshal(map[string]interface{}{
			"type":  "chat_log",
			"entry": entry,
		})
		if err != nil {
			hub.logger.Error("序列化会话记录失败", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
			continue
		}
		for _, client := range clients {
			select {
			case client.send <- msg:
			default:
				// 队列满，断开慢速订阅者
				hub.logger.Warn("订阅者消息队列已满，断开连接", map[string]interface{}{"session_id": sessionID})
				client.Close()
			}
		}
	}
}

// Shutdown 关闭所有连接并停止清理
func (hub *TranscriptHub) Shutdown() {
	hub.stopOnce.Do(func() {
		hub.cleanupTicker.Stop()
		close(hub.done)

		hub.mutex.Lock()
		defer hub.mutex.Unlock()
		for _, clients := range hub.connections {
			for client := range clients {
				client.Close()
				hub.metrics.DecGauge(utils.MetricLiveSubscribers)
			}
		}
		hub.connections = make(map[string]map[*TranscriptClient]struct{})
	})
}

// ServeSession 升级连接并订阅会话记录，直到客户端断开
func (hub *TranscriptHub) ServeSession(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn("WebSocket 升级失败", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return
	}

	client := newTranscriptClient(conn, sessionID)
	hub.register(client)
	defer hub.unregister(client)

	welcome, _ := json.Marshal(map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
	client.send <- welcome

	go hub.writePump(client)
	hub.readPump(client)
}

// readPump 只用来感知断开和 pong，客户端发来的内容忽略
func (hub *TranscriptHub) readPump(client *TranscriptClient) {
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.touch()
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.logger.Debug("WebSocket 读取结束", map[string]interface{}{"session_id": client.sessionID, "error": err.Error()})
			}
			return
		}
		client.touch()
	}
}

func (hub *TranscriptHub) writePump(client *TranscriptClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case message := <-client.send:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mindwell_backend/internal/repository"
	"mindwell_backend/pkg/logger"
	"mindwell_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second // 固定心跳间隔，防止中间代理掐断空闲连接
	maxMessageSize = 512
	shardCount     = 32
	onlineTTL      = 2 * time.Minute // 在线状态过期时间

	pubSubChannel = "mindwell:ws:fanout"
)

// 推送事件名
const (
	EventConnected   = "connected"
	EventChatMessage = "chat_message"
	EventUserStatus  = "user_status"
	EventTyping      = "typing"
)

var messagePool = sync.Pool{
	New: func() interface{} {
		return &WSMessage{}
	},
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client 一条活跃推送通道；同一用户可同时持有多条（多标签页/多设备）
type Client struct {
	Hub     *ChatHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint
	Limiter *rate.Limiter
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}

		// 限流校验 (每秒最多 30 条消息，允许突发 50 条)
		if !c.Limiter.Allow() {
			continue
		}

		wsMsg := messagePool.Get().(*WSMessage)
		if err := json.Unmarshal(message, wsMsg); err != nil {
			messagePool.Put(wsMsg)
			continue
		}

		monitoring.WSMessageCounter.WithLabelValues(wsMsg.Type, "in").Inc()

		// 客户端唯一的上行事件是输入中提示，不落库直接转发
		if wsMsg.Type == EventTyping {
			c.Hub.handleTyping(c.UserID, *wsMsg)
		}
		messagePool.Put(wsMsg)
	}
}

// handleTyping 转发输入中提示给会话其他活跃成员
func (h *ChatHub) handleTyping(senderID uint, msg WSMessage) {
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		return
	}
	convID, _ := data["conversationId"].(string)
	if convID == "" || h.ChatRepo == nil {
		return
	}

	ids, err := h.ChatRepo.GetActiveMemberIDs(convID)
	if err != nil {
		return
	}

	data["userId"] = senderID
	msg.Data = data

	var targets []uint
	for _, id := range ids {
		if id != senderID {
			targets = append(targets, id)
		}
	}
	h.PushToUsers(targets, msg)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if n := len(c.Send); n > 0 {
				for i := 0; i < n; i++ {
					w.Write(<-c.Send)
				}
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// 心跳写失败即视为连接死亡，readPump 的错误路径负责注销
				return
			}
		}
	}
}

// shard 按用户ID分片，每个用户维护一组活跃连接
type shard struct {
	clients map[uint]map[*Client]struct{}
	mu      sync.RWMutex
}

type ChatHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	Redis      *redis.Client
	ChatRepo   *repository.ChatRepository
	ctx        context.Context
}

func NewChatHub(rdb *redis.Client, chatRepo *repository.ChatRepository) *ChatHub {
	h := &ChatHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Redis:      rdb,
		ChatRepo:   chatRepo,
		ctx:        context.Background(),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{
			clients: make(map[uint]map[*Client]struct{}),
		}
	}
	return h
}

func (h *ChatHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

// PubSubMessage 跨实例广播信封：注册表是进程内的，实例间经 redis 转发，
// 本地 hub 只做最后一跳投递
type PubSubMessage struct {
	TargetUsers []uint          `json:"targetUsers"`
	Payload     json.RawMessage `json:"payload"`
}

func (h *ChatHub) Run() {
	pubsub := h.Redis.Subscribe(h.ctx, pubSubChannel)
	go func() {
		ch := pubsub.Channel()
		for msg := range ch {
			var psMsg PubSubMessage
			if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
				logger.Log.Error("PubSub unmarshal error", zap.Error(err))
				continue
			}
			h.pushToLocalRawUsers(psMsg.TargetUsers, psMsg.Payload)
		}
	}()

	// 批量处理状态更新
	ticker := time.NewTicker(500 * time.Millisecond)
	// 在线状态续期定时器
	heartbeatTicker := time.NewTicker(1 * time.Minute)
	defer func() {
		ticker.Stop()
		heartbeatTicker.Stop()
	}()

	type statusUpdate struct {
		userID uint
		status string
	}
	var pendingUpdates []statusUpdate

	for {
		select {
		case client := <-h.register:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			conns, firstConn := s.clients[client.UserID], false
			if conns == nil {
				conns = make(map[*Client]struct{})
				s.clients[client.UserID] = conns
				firstConn = true
			}
			conns[client] = struct{}{}
			s.mu.Unlock()

			monitoring.WSConnections.Inc()
			if firstConn {
				pendingUpdates = append(pendingUpdates, statusUpdate{client.UserID, "online"})
			}

			// 握手事件，客户端据此确认通道已建立并触发状态兜底拉取
			h.enqueue(client, WSMessage{
				Type: EventConnected,
				Data: map[string]interface{}{"userId": client.UserID},
			})

		case client := <-h.unregister:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			lastConn := false
			if conns, ok := s.clients[client.UserID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.Send)
					monitoring.WSConnections.Dec()
					if len(conns) == 0 {
						delete(s.clients, client.UserID)
						lastConn = true
					}
				}
			}
			s.mu.Unlock()

			if lastConn {
				pendingUpdates = append(pendingUpdates, statusUpdate{client.UserID, "offline"})
			}

		case <-heartbeatTicker.C:
			h.refreshOnlineStatus()

		case <-ticker.C:
			if len(pendingUpdates) == 0 {
				continue
			}

			pipe := h.Redis.Pipeline()
			for _, update := range pendingUpdates {
				key := fmt.Sprintf("user:online:%d", update.userID)
				if update.status == "online" {
					pipe.Set(h.ctx, key, "true", onlineTTL)
				} else {
					pipe.Del(h.ctx, key)
				}
			}
			_, err := pipe.Exec(h.ctx)
			if err != nil {
				logger.Log.Error("Redis pipeline error", zap.Error(err))
			}

			for _, update := range pendingUpdates {
				h.notifyStatus(update.userID, update.status)
			}
			pendingUpdates = pendingUpdates[:0]
		}
	}
}

// refreshOnlineStatus 刷新当前实例所有在线用户的过期时间
func (h *ChatHub) refreshOnlineStatus() {
	pipe := h.Redis.Pipeline()
	count := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		for userID := range s.clients {
			pipe.Expire(h.ctx, fmt.Sprintf("user:online:%d", userID), onlineTTL)
			count++
		}
		s.mu.RUnlock()
	}
	if count > 0 {
		pipe.Exec(h.ctx)
		logger.Log.Debug("Refreshed online status", zap.Int("count", count))
	}
}

// notifyStatus 将上下线状态推给同会话的用户
func (h *ChatHub) notifyStatus(userID uint, status string) {
	if h.ChatRepo == nil {
		return
	}
	relatedIDs, err := h.ChatRepo.GetRelatedUserIDs(userID)
	if err != nil || len(relatedIDs) == 0 {
		return
	}

	h.PushToUsers(relatedIDs, WSMessage{
		Type: EventUserStatus,
		Data: map[string]interface{}{
			"userId": userID,
			"status": status,
		},
	})
}

// Stop 关闭所有连接并清理在线状态
func (h *ChatHub) Stop() {
	logger.Log.Info("ChatHub stopping: clearing online status and closing connections...")

	var allUserIDs []uint
	closed := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for userID, conns := range s.clients {
			allUserIDs = append(allUserIDs, userID)
			for client := range conns {
				close(client.Send)
				closed++
			}
			delete(s.clients, userID)
		}
		s.mu.Unlock()
	}

	if len(allUserIDs) > 0 {
		pipe := h.Redis.Pipeline()
		for _, userID := range allUserIDs {
			pipe.Del(h.ctx, fmt.Sprintf("user:online:%d", userID))
		}
		pipe.Exec(h.ctx)
	}

	monitoring.WSConnections.Set(0)
	logger.Log.Info("ChatHub stopped", zap.Int("closedConnections", closed))
}

// PushToUsers 经 redis pub/sub 广播，多实例部署时每个实例各自完成本地投递
func (h *ChatHub) PushToUsers(userIDs []uint, msg WSMessage) {
	if len(userIDs) == 0 {
		return
	}
	msgBytes, _ := json.Marshal(msg)
	psMsg := PubSubMessage{
		TargetUsers: userIDs,
		Payload:     msgBytes,
	}
	payload, _ := json.Marshal(psMsg)
	h.Redis.Publish(h.ctx, pubSubChannel, payload)
	monitoring.WSMessageCounter.WithLabelValues(msg.Type, "out").Inc()
}

// pushToLocalRawUsers 最后一跳投递：尽力而为，单条死连接不影响其余投递
func (h *ChatHub) pushToLocalRawUsers(userIDs []uint, payload []byte) {
	for _, id := range userIDs {
		s := h.getShard(id)
		s.mu.RLock()
		for client := range s.clients[id] {
			select {
			case client.Send <- payload:
			default:
				// 发送缓冲已满说明连接已死或假死，丢弃而非阻塞广播
			}
		}
		s.mu.RUnlock()
	}
}

// enqueue 单连接直接入队（握手事件用），同样不阻塞
func (h *ChatHub) enqueue(client *Client, msg WSMessage) {
	payload, _ := json.Marshal(msg)
	select {
	case client.Send <- payload:
	default:
	}
}

func (h *ChatHub) IsUserOnline(userID uint) bool {
	s := h.getShard(userID)
	s.mu.RLock()
	conns, ok := s.clients[userID]
	online := ok && len(conns) > 0
	s.mu.RUnlock()
	if online {
		return true
	}

	// 查 Redis (多实例部署)
	val, err := h.Redis.Get(h.ctx, fmt.Sprintf("user:online:%d", userID)).Result()
	return err == nil && val == "true"
}

func ServeWs(hub *ChatHub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(30), 50),
	}
	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

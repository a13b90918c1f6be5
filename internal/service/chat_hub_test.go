package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addLocalClient 直接把连接挂进分片，绕开需要 Redis 的 Run 循环
func addLocalClient(h *ChatHub, userID uint, bufSize int) *Client {
	c := &Client{Hub: h, UserID: userID, Send: make(chan []byte, bufSize)}
	s := h.getShard(userID)
	s.mu.Lock()
	if s.clients[userID] == nil {
		s.clients[userID] = make(map[*Client]struct{})
	}
	s.clients[userID][c] = struct{}{}
	s.mu.Unlock()
	return c
}

func TestPushToLocalRawUsers_MultiConnPerUser(t *testing.T) {
	h := NewChatHub(nil, nil)

	// 同一用户两条连接（双端登录），另一用户一条
	c1 := addLocalClient(h, 1, 4)
	c2 := addLocalClient(h, 1, 4)
	c3 := addLocalClient(h, 2, 4)

	payload := []byte(`{"type":"chat_message"}`)
	h.pushToLocalRawUsers([]uint{1}, payload)

	assert.Equal(t, payload, <-c1.Send)
	assert.Equal(t, payload, <-c2.Send)
	assert.Len(t, c3.Send, 0, "非目标用户不应收到消息")
}

func TestPushToLocalRawUsers_SkipsOfflineUsers(t *testing.T) {
	h := NewChatHub(nil, nil)
	c1 := addLocalClient(h, 1, 4)

	// 目标里混有不在线的用户，投递只对在线连接生效
	h.pushToLocalRawUsers([]uint{1, 42, 99}, []byte(`x`))
	assert.Len(t, c1.Send, 1)
}

func TestPushToLocalRawUsers_FullBufferDoesNotBlock(t *testing.T) {
	h := NewChatHub(nil, nil)

	dead := addLocalClient(h, 1, 1)
	dead.Send <- []byte(`stale`) // 塞满缓冲，模拟假死连接
	alive := addLocalClient(h, 1, 4)

	// 投递设计为永不阻塞，这里同步调用即可
	h.pushToLocalRawUsers([]uint{1}, []byte(`new`))

	assert.Equal(t, []byte(`new`), <-alive.Send, "死连接不应拖累同用户其他连接")
	assert.Equal(t, []byte(`stale`), <-dead.Send)
	assert.Len(t, dead.Send, 0, "缓冲满时消息被丢弃而非阻塞")
}

func TestEnqueueHandshake(t *testing.T) {
	h := NewChatHub(nil, nil)
	c := addLocalClient(h, 5, 4)

	h.enqueue(c, WSMessage{Type: EventConnected, Data: map[string]interface{}{"userId": uint(5)}})

	raw := <-c.Send
	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, EventConnected, msg.Type)
}

func TestIsUserOnline_LocalConnection(t *testing.T) {
	h := NewChatHub(nil, nil)
	addLocalClient(h, 3, 1)

	assert.True(t, h.IsUserOnline(3))
}

func TestShardDistribution(t *testing.T) {
	h := NewChatHub(nil, nil)

	// 同一用户总是落在同一分片
	assert.Same(t, h.getShard(7), h.getShard(7))
	assert.Same(t, h.getShard(7), h.getShard(7+shardCount))
}

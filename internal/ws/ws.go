// Package ws 给前端推送自选快照的变化通知，纯属锦上添花：
// 推不动就断开，核心数据照样靠轮询拉。
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fund-watch-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const heartbeatInterval = 30 * time.Second

// snapshotMsg 推送给客户端的快照消息
type snapshotMsg struct {
	Type  string              `json:"type"`
	Funds []models.FundRecord `json:"funds"`
}

// Hub 管理所有 WebSocket 连接，连接表只由 Run 这一个 goroutine 动
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 8),
	}
}

func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			fmt.Println("新连接，当前在线:", len(h.clients))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			fmt.Println("连接断开，当前在线:", len(h.clients))

		case message := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}

		case <-heartbeat.C:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

// BroadcastFunds 把最新快照广播给所有在线客户端，没人在线就是空操作
func (h *Hub) BroadcastFunds(funds []models.FundRecord) {
	msg, err := json.Marshal(snapshotMsg{Type: "funds", Funds: funds})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		// 广播积压时丢掉这次，下一次快照很快会来
	}
}

func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.register <- conn

	go func() {
		defer func() {
			h.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket 读写参数，hub 包内共用。
const (
	// 向对端写一条消息允许的最长时间。
	writeWait = 10 * time.Second

	// 等待下一个 pong 的最长时间。
	pongWait = 60 * time.Second

	// ping 周期，必须小于 pongWait。
	pingPeriod = (pongWait * 9) / 10

	// 对端单条消息的最大字节数。
	maxMessageSize = 1024
)

// Client 代表一条已通过认证、绑定到 (userID, roomCode) 的 WebSocket 连接。
// socketID 是传输层连接句柄，同时写入该用户的存在记录。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	socketID string
	userID   string
	roomCode string
	send     chan []byte

	// send 的关闭与写入互斥：动作处理在独立 goroutine 中运行，
	// 可能与注销/关房并发。
	sendMu     sync.Mutex
	sendClosed bool
}

// NewClient 创建一个 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn, socketID, userID, roomCode string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		socketID: socketID,
		userID:   userID,
		roomCode: roomCode,
		send:     make(chan []byte, 256),
	}
}

func (c *Client) SocketID() string { return c.socketID }
func (c *Client) UserID() string   { return c.userID }
func (c *Client) RoomCode() string { return c.roomCode }

// CloseConn 直接关闭底层连接，随后读写泵自行退出。
func (c *Client) CloseConn() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
}

// trySend 非阻塞地把消息排入发送队列。
// 客户端已注销（send 已关闭）或队列已满时返回 false，消息被丢弃。
func (c *Client) trySend(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend 幂等地关闭发送队列。之后的 trySend 一律丢弃，不会 panic。
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump 把连接上的消息泵入 Hub 的处理通道。
// 退出时触发注销，这是断开检测的唯一来源。
func (c *Client) readPump() {
	defer func() {
		c.hub.queue(hubMessage{kind: messageUnregister, client: c})
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_code": c.roomCode})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.hub.queue(hubMessage{kind: messageInbound, client: c, raw: message}) {
			logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_code": c.roomCode}).
				Warn("Hub message channel full, dropping client message")
		}
	}
}

// writePump 把 send 通道里的消息写到连接上，并周期性发送 ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 在注销时关闭了 send 通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_code": c.roomCode}).
					WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pongarena/protocol"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 16
	joinTimeout    = 5 * time.Second
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrConnClosed    = errors.New("connection closed")
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws        *websocket.Conn
	send      chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func NewClientConn(ws *websocket.Conn, queue int) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, queue),
		quit: make(chan struct{}),
	}
}

// Send 将要发送的消息压入队列（非阻塞，满则丢弃，防止阻塞 Tick）
func (c *ClientConn) Send(b []byte) error {
	select {
	case <-c.quit:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 通知写协程发完队列中的消息后关闭连接，可重复调用
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	return nil
}

func (c *ClientConn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// writePump 独立协程，唯一的写者
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.quit:
			c.flush()
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush 关闭前写出剩余消息（例如 gameFull）
func (c *ClientConn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump 读取客户端事件并投递到房间
func (c *ClientConn) readPump(room *Room, id string) {
	defer c.Close()
	// 读泵退出时，通知房间在房间协程中移除该玩家
	defer room.Leave(id)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("read error", "session", id, "err", err)
			}
			return
		}
		room.dispatch(id, payload)
	}
}

// dispatch 将一帧入站消息映射为房间命令；未知事件与畸形帧忽略
func (r *Room) dispatch(id string, payload []byte) {
	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		r.metrics.IncFramesMalformed()
		Log.Debugw("malformed frame", "session", id, "err", err)
		return
	}
	switch env.Event {
	case protocol.EventStartGame:
		r.RequestStart(id)
	case protocol.EventPaddleMove:
		pm, err := protocol.DecodePayload[protocol.PaddleMove](env)
		if err != nil || pm.Y == nil {
			r.metrics.IncFramesMalformed()
			Log.Debugw("malformed paddleMove", "session", id, "err", err)
			return
		}
		r.MovePaddle(id, *pm.Y)
	default:
		Log.Debugw("unknown event", "session", id, "event", env.Event)
	}
}

// HandleWS WebSocket 接入：连接即加入，第三个连接收到 gameFull 后被关闭
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "err", err)
		return
	}

	id := uuid.NewString()
	client := NewClientConn(ws, s.cfg.SendQueue)
	go client.writePump()
	Log.Infow("player connected", "session", id, "remote", ws.RemoteAddr().String())

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if _, err := s.room.Join(ctx, id, client); err != nil {
		if !errors.Is(err, ErrGameFull) {
			Log.Warnw("join failed", "session", id, "err", err)
			_ = client.Close()
		}
		return
	}

	go client.readPump(s.room, id)
}

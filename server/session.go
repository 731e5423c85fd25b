package server

import (
	"errors"
	"time"
)

// MaxPlayers 一局固定两名玩家
const MaxPlayers = 2

// ErrGameFull 第三个连接尝试加入
var ErrGameFull = errors.New("game is full")

// Conn 房间向客户端写数据的最小接口
type Conn interface {
	Send([]byte) error
	Close() error
}

// Session 一个已加入的连接及其槽位
type Session struct {
	ID       string
	Slot     int // 1 或 2，决定控制哪只球拍
	Conn     Conn
	JoinedAt time.Time
}

// Registry 槽位分配与成员管理。非并发安全，由房间协程独占
type Registry struct {
	sessions map[string]*Session
	slots    [MaxPlayers + 1]string // 下标为槽位，值为会话 ID
}

// NewRegistry 创建空的成员表
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session, MaxPlayers)}
}

// Join 分配最小空闲槽位；已满返回 ErrGameFull 且不改变成员
func (r *Registry) Join(id string, conn Conn) (*Session, error) {
	if len(r.sessions) >= MaxPlayers {
		return nil, ErrGameFull
	}
	for slot := 1; slot <= MaxPlayers; slot++ {
		if r.slots[slot] != "" {
			continue
		}
		s := &Session{ID: id, Slot: slot, Conn: conn, JoinedAt: time.Now()}
		r.slots[slot] = id
		r.sessions[id] = s
		return s, nil
	}
	return nil, ErrGameFull
}

// Leave 移除会话并释放槽位
func (r *Registry) Leave(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	r.slots[s.Slot] = ""
	return s, true
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Count() int { return len(r.sessions) }

func (r *Registry) BothConnected() bool { return len(r.sessions) == MaxPlayers }

// Each 按槽位顺序遍历
func (r *Registry) Each(fn func(*Session)) {
	for slot := 1; slot <= MaxPlayers; slot++ {
		if id := r.slots[slot]; id != "" {
			fn(r.sessions[id])
		}
	}
}

package server

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/rand"

	"pongarena/game"
	"pongarena/protocol"
)

// ErrRoomClosed 房间协程已退出
var ErrRoomClosed = errors.New("room closed")

// RoomOptions 创建房间的参数
type RoomOptions struct {
	Acceleration float64
	ClampPaddles bool
	Rand         *rand.Rand // 为空时使用时间种子
}

// Room 唯一的对局：权威状态只在 Run 协程内读写，
// 外部通过收件箱提交命令，Tick 与命令在同一个 select 中串行执行。
type Room struct {
	inbox chan any
	done  chan struct{}

	match   *game.Match
	engine  *game.Engine
	players *Registry
	metrics *RoomMetrics

	clampPaddles bool
	clock        tickClock
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(opts RoomOptions) *Room {
	if opts.Acceleration == 0 {
		opts.Acceleration = game.DefaultAcceleration
	}
	rng := opts.Rand
	if rng == nil {
		rng = newSeededRand()
	}
	return &Room{
		inbox:        make(chan any, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		done:         make(chan struct{}),
		match:        game.NewMatch(),
		engine:       game.NewEngine(opts.Acceleration, rng),
		players:      NewRegistry(),
		metrics:      &RoomMetrics{},
		clampPaddles: opts.ClampPaddles,
	}
}

// Metrics 房间指标，供 /metrics 输出
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Join 请求加入并等待分配结果。满员时返回 ErrGameFull，连接已被房间关闭。
// 等待超时时命令可能已在收件箱中，随后补发 Leave 释放槽位
func (r *Room) Join(ctx context.Context, id string, conn Conn) (int, error) {
	reply := make(chan JoinResult, 1)
	if err := r.send(ctx, joinCmd{ID: id, Conn: conn, Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case res := <-reply:
		return res.Slot, res.Err
	case <-ctx.Done():
		r.Leave(id)
		return 0, ctx.Err()
	case <-r.done:
		return 0, ErrRoomClosed
	}
}

// Leave 请求在房间协程中移除玩家。必须送达，否则对局不会重置
func (r *Room) Leave(id string) {
	_ = r.send(context.Background(), leaveCmd{ID: id})
}

// RequestStart 开局请求，是否生效由房间协程判定
func (r *Room) RequestStart(id string) {
	_ = r.send(context.Background(), startCmd{ID: id})
}

// MovePaddle 球拍输入：收件箱拥塞时丢弃，保证 Tick 准时
func (r *Room) MovePaddle(id string, y float64) {
	select {
	case r.inbox <- paddleCmd{ID: id, Y: y}:
	default:
		r.metrics.IncActionsIgnored()
	}
}

// Snapshot 在房间协程中读取当前状态
func (r *Room) Snapshot(ctx context.Context) (RoomStatus, error) {
	reply := make(chan RoomStatus, 1)
	if err := r.send(ctx, snapshotCmd{Reply: reply}); err != nil {
		return RoomStatus{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return RoomStatus{}, ctx.Err()
	case <-r.done:
		return RoomStatus{}, ErrRoomClosed
	}
}

func (r *Room) send(ctx context.Context, cmd any) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		r.handleJoin(c)
	case leaveCmd:
		r.handleLeave(c.ID)
	case startCmd:
		r.handleStart(c.ID)
	case paddleCmd:
		r.handlePaddle(c)
	case snapshotCmd:
		c.Reply <- RoomStatus{Connected: r.players.Count(), State: buildSnapshot(r.match)}
	}
}

func (r *Room) handleJoin(c joinCmd) {
	s, err := r.players.Join(c.ID, c.Conn)
	if err != nil {
		r.metrics.IncJoinsRejected()
		Log.Infow("join rejected", "session", c.ID, "reason", err)
		r.sendTo(c.ID, c.Conn, protocol.MustEncode(protocol.EventGameFull, protocol.GameFullReason))
		_ = c.Conn.Close()
		c.Reply <- JoinResult{Err: err}
		return
	}
	Log.Infow("player joined", "session", s.ID, "slot", s.Slot, "players", r.players.Count())

	r.sendTo(s.ID, s.Conn, protocol.MustEncode(protocol.EventPlayerNumber, s.Slot))
	r.broadcastPlayers()
	c.Reply <- JoinResult{Slot: s.Slot}
}

// handleLeave 任一玩家断开即整局重置，不保留比分
func (r *Room) handleLeave(id string) {
	s, ok := r.players.Leave(id)
	if !ok {
		return
	}
	_ = s.Conn.Close()
	Log.Infow("player disconnected", "session", s.ID, "slot", s.Slot,
		"played", time.Since(s.JoinedAt).Round(time.Second),
		"score", [2]int{r.match.Player1.Score, r.match.Player2.Score})

	r.engine.Reset(r.match)
	r.broadcast(protocol.MustEncode(protocol.EventPlayerDisconnected, nil))
	r.broadcastPlayers()
}

// handleStart 仅 1 号玩家在两人到齐时可开局，其余请求静默忽略
func (r *Room) handleStart(id string) {
	s, ok := r.players.Get(id)
	if !ok || s.Slot != 1 || !r.players.BothConnected() {
		r.metrics.IncActionsIgnored()
		Log.Debugw("start ignored", "session", id, "players", r.players.Count())
		return
	}
	r.match.Started = true
	r.engine.Serve(r.match, game.ServeRandom)
	Log.Infow("game started", "session", id)
	r.broadcastState(protocol.EventGameStart)
}

func (r *Room) handlePaddle(c paddleCmd) {
	s, ok := r.players.Get(c.ID)
	if !ok || !r.match.Started {
		r.metrics.IncActionsIgnored()
		return
	}
	y := c.Y
	if r.clampPaddles {
		y = clampPaddle(y)
	}
	r.match.Paddle(s.Slot).Y = y
	r.metrics.IncPaddleMoves()
	r.broadcastState(protocol.EventGameStateUpdate)
}

func clampPaddle(y float64) float64 {
	if y < 0 {
		return 0
	}
	if limit := game.WorldHeight - game.PaddleHeight; y > limit {
		return limit
	}
	return y
}

func (r *Room) broadcastPlayers() {
	r.broadcast(protocol.MustEncode(protocol.EventPlayersUpdate,
		protocol.PlayersUpdate{BothConnected: r.players.BothConnected()}))
}

// broadcastState 广播完整快照
func (r *Room) broadcastState(event string) {
	b, err := protocol.Encode(event, buildSnapshot(r.match))
	if err != nil {
		Log.Errorw("encode state", "event", event, "err", err)
		return
	}
	r.broadcast(b)
}

func (r *Room) broadcast(b []byte) {
	r.players.Each(func(s *Session) {
		r.sendTo(s.ID, s.Conn, b)
	})
}

func (r *Room) sendTo(id string, c Conn, b []byte) {
	if err := c.Send(b); err != nil {
		r.metrics.IncSendsDropped()
		Log.Debugw("send dropped", "session", id, "err", err)
	}
}

// closeAll 房间退出时断开所有连接
func (r *Room) closeAll() {
	r.players.Each(func(s *Session) {
		_ = s.Conn.Close()
	})
}

func buildSnapshot(m *game.Match) protocol.MatchState {
	return protocol.MatchState{
		Ball: protocol.BallState{
			X:            m.Ball.X,
			Y:            m.Ball.Y,
			SpeedX:       m.Ball.SpeedX,
			SpeedY:       m.Ball.SpeedY,
			Size:         m.Ball.Size,
			CurrentSpeed: m.Ball.CurrentSpeed,
		},
		Paddles: protocol.PaddlesState{
			Player1: protocol.PaddleState{Y: m.Player1.Y, Score: m.Player1.Score},
			Player2: protocol.PaddleState{Y: m.Player2.Y, Score: m.Player2.Score},
		},
		GameStarted: m.Started,
	}
}

package server

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"golang.org/x/exp/rand"

	"pongarena/game"
	"pongarena/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	f.frames = append(f.frames, append([]byte(nil), b...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(f.frames))
	for _, b := range f.frames {
		env, err := protocol.DecodeEnvelope(b)
		if err != nil {
			t.Fatalf("decode frame %s: %v", b, err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) events(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range f.envelopes(t) {
		out = append(out, env.Event)
	}
	return out
}

// last 返回最后一条指定事件
func (f *fakeConn) last(t *testing.T, event string) (protocol.Envelope, bool) {
	t.Helper()
	envs := f.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			return envs[i], true
		}
	}
	return protocol.Envelope{}, false
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func newTestRoom() *Room {
	return NewRoom(RoomOptions{
		Acceleration: game.DefaultAcceleration,
		Rand:         rand.New(rand.NewSource(1)),
	})
}

func join(t *testing.T, r *Room, id string, c Conn) JoinResult {
	t.Helper()
	reply := make(chan JoinResult, 1)
	r.handle(joinCmd{ID: id, Conn: c, Reply: reply})
	return <-reply
}

// startedRoom 两名玩家已加入且 1 号已开局
func startedRoom(t *testing.T) (*Room, *fakeConn, *fakeConn) {
	t.Helper()
	r := newTestRoom()
	c1, c2 := &fakeConn{}, &fakeConn{}
	join(t, r, "p1", c1)
	join(t, r, "p2", c2)
	r.handle(startCmd{ID: "p1"})
	if !r.match.Started {
		t.Fatalf("room did not start")
	}
	c1.reset()
	c2.reset()
	return r, c1, c2
}

func decodeState(t *testing.T, env protocol.Envelope) protocol.MatchState {
	t.Helper()
	st, err := protocol.DecodePayload[protocol.MatchState](env)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestRoomJoinSendsPlayerNumberAndPlayersUpdate(t *testing.T) {
	r := newTestRoom()
	c1, c2 := &fakeConn{}, &fakeConn{}

	if res := join(t, r, "p1", c1); res.Err != nil || res.Slot != 1 {
		t.Fatalf("join p1 = %+v", res)
	}
	env, ok := c1.last(t, protocol.EventPlayerNumber)
	if !ok || string(env.Data) != "1" {
		t.Fatalf("p1 playerNumber = %s, ok=%v", env.Data, ok)
	}
	up, _ := c1.last(t, protocol.EventPlayersUpdate)
	if pu, _ := protocol.DecodePayload[protocol.PlayersUpdate](up); pu.BothConnected {
		t.Fatalf("bothConnected true with one player")
	}

	if res := join(t, r, "p2", c2); res.Err != nil || res.Slot != 2 {
		t.Fatalf("join p2 = %+v", res)
	}
	env, _ = c2.last(t, protocol.EventPlayerNumber)
	if string(env.Data) != "2" {
		t.Fatalf("p2 playerNumber = %s", env.Data)
	}
	for _, c := range []*fakeConn{c1, c2} {
		up, ok := c.last(t, protocol.EventPlayersUpdate)
		if !ok {
			t.Fatalf("missing playersUpdate")
		}
		pu, err := protocol.DecodePayload[protocol.PlayersUpdate](up)
		if err != nil || !pu.BothConnected {
			t.Fatalf("playersUpdate = %+v err=%v, want bothConnected", pu, err)
		}
	}
}

func TestRoomThirdJoinRejectedAndClosed(t *testing.T) {
	r := newTestRoom()
	c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	join(t, r, "p1", c1)
	join(t, r, "p2", c2)
	c1.reset()

	res := join(t, r, "p3", c3)
	if !errors.Is(res.Err, ErrGameFull) {
		t.Fatalf("third join err = %v, want ErrGameFull", res.Err)
	}
	if got := c3.events(t); len(got) != 1 || got[0] != protocol.EventGameFull {
		t.Fatalf("third conn events = %v, want [gameFull]", got)
	}
	if !c3.isClosed() {
		t.Fatalf("rejected conn not closed")
	}
	if r.players.Count() != 2 {
		t.Fatalf("players = %d, want 2", r.players.Count())
	}
	if got := c1.events(t); len(got) != 0 {
		t.Fatalf("existing player received %v on rejected join", got)
	}
	if r.metrics.JoinsRejected != 1 {
		t.Fatalf("JoinsRejected = %d", r.metrics.JoinsRejected)
	}
}

func TestRoomStartFromSlot1BroadcastsGameStart(t *testing.T) {
	r := newTestRoom()
	c1, c2 := &fakeConn{}, &fakeConn{}
	join(t, r, "p1", c1)
	join(t, r, "p2", c2)

	r.handle(startCmd{ID: "p1"})
	for _, c := range []*fakeConn{c1, c2} {
		env, ok := c.last(t, protocol.EventGameStart)
		if !ok {
			t.Fatalf("missing gameStart, events=%v", c.events(t))
		}
		st := decodeState(t, env)
		if !st.GameStarted {
			t.Fatalf("gameStarted = false")
		}
		if st.Ball.X != 400 || st.Ball.Y != 200 || st.Ball.CurrentSpeed != 3 {
			t.Fatalf("ball = %+v, want at (400,200) with speed 3", st.Ball)
		}
	}
}

func TestRoomStartIgnored(t *testing.T) {
	t.Run("from slot 2", func(t *testing.T) {
		r := newTestRoom()
		c1, c2 := &fakeConn{}, &fakeConn{}
		join(t, r, "p1", c1)
		join(t, r, "p2", c2)
		c1.reset()
		c2.reset()

		r.handle(startCmd{ID: "p2"})
		if r.match.Started {
			t.Fatalf("slot 2 started the game")
		}
		if len(c1.events(t))+len(c2.events(t)) != 0 {
			t.Fatalf("ignored start produced frames")
		}
	})
	t.Run("alone", func(t *testing.T) {
		r := newTestRoom()
		join(t, r, "p1", &fakeConn{})
		r.handle(startCmd{ID: "p1"})
		if r.match.Started {
			t.Fatalf("started with a single player")
		}
	})
	t.Run("unknown session", func(t *testing.T) {
		r := newTestRoom()
		join(t, r, "p1", &fakeConn{})
		join(t, r, "p2", &fakeConn{})
		r.handle(startCmd{ID: "ghost"})
		if r.match.Started {
			t.Fatalf("unknown session started the game")
		}
	})
}

func TestRoomRepeatedStartServesAgainKeepingScores(t *testing.T) {
	r, c1, c2 := startedRoom(t)
	r.match.Player1.Score = 2
	r.match.Player2.Score = 1
	r.match.Ball = game.Ball{X: 120, Y: 50, SpeedX: -9, SpeedY: 4, Size: game.BallSize, CurrentSpeed: 9}

	r.handle(startCmd{ID: "p1"})

	if !r.match.Started {
		t.Fatalf("match stopped after repeated start")
	}
	b := r.match.Ball
	if b.X != 400 || b.Y != 200 || b.CurrentSpeed != game.InitialBallSpeed || math.Abs(b.SpeedX) != game.InitialBallSpeed {
		t.Fatalf("ball not re-served: %+v", b)
	}
	for _, c := range []*fakeConn{c1, c2} {
		env, ok := c.last(t, protocol.EventGameStart)
		if !ok {
			t.Fatalf("missing gameStart on repeated start")
		}
		st := decodeState(t, env)
		if st.Paddles.Player1.Score != 2 || st.Paddles.Player2.Score != 1 {
			t.Fatalf("scores = %d-%d, want 2-1", st.Paddles.Player1.Score, st.Paddles.Player2.Score)
		}
	}
}

func TestRoomPaddleIgnoredBeforeStart(t *testing.T) {
	r := newTestRoom()
	c1 := &fakeConn{}
	join(t, r, "p1", c1)
	join(t, r, "p2", &fakeConn{})
	c1.reset()

	r.handle(paddleCmd{ID: "p1", Y: 42})
	if r.match.Player1.Y != game.DefaultPaddleY {
		t.Fatalf("paddle moved before start: %f", r.match.Player1.Y)
	}
	if len(c1.events(t)) != 0 {
		t.Fatalf("ignored paddle move produced frames")
	}
}

func TestRoomPaddleMoveUpdatesCallerSlot(t *testing.T) {
	r, c1, c2 := startedRoom(t)

	r.handle(paddleCmd{ID: "p2", Y: 250})
	if r.match.Player2.Y != 250 || r.match.Player1.Y != game.DefaultPaddleY {
		t.Fatalf("paddles = %f/%f", r.match.Player1.Y, r.match.Player2.Y)
	}
	for _, c := range []*fakeConn{c1, c2} {
		env, ok := c.last(t, protocol.EventGameStateUpdate)
		if !ok {
			t.Fatalf("missing gameStateUpdate after paddle move")
		}
		if st := decodeState(t, env); st.Paddles.Player2.Y != 250 {
			t.Fatalf("broadcast player2.y = %f", st.Paddles.Player2.Y)
		}
	}
}

func TestRoomPaddleClamp(t *testing.T) {
	tests := []struct {
		name  string
		clamp bool
		y     float64
		want  float64
	}{
		{"permissive above", false, -50, -50},
		{"permissive below", false, 900, 900},
		{"clamp above", true, -50, 0},
		{"clamp below", true, 900, game.WorldHeight - game.PaddleHeight},
		{"clamp inside", true, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := startedRoom(t)
			r.clampPaddles = tt.clamp
			r.handle(paddleCmd{ID: "p1", Y: tt.y})
			if r.match.Player1.Y != tt.want {
				t.Fatalf("y = %f, want %f", r.match.Player1.Y, tt.want)
			}
		})
	}
}

func TestRoomDisconnectResetsMatch(t *testing.T) {
	r, c1, c2 := startedRoom(t)
	r.match.Player1.Score = 3
	r.match.Player2.Score = 5

	r.handle(leaveCmd{ID: "p2"})

	if r.match.Started || r.match.Player1.Score != 0 || r.match.Player2.Score != 0 {
		t.Fatalf("after disconnect started=%v scores=%d-%d",
			r.match.Started, r.match.Player1.Score, r.match.Player2.Score)
	}
	if r.match.Ball.X != 400 || r.match.Ball.Y != 200 || r.match.Ball.CurrentSpeed != game.InitialBallSpeed {
		t.Fatalf("ball not reset: %+v", r.match.Ball)
	}
	if !c2.isClosed() {
		t.Fatalf("leaver conn not closed")
	}
	got := c1.events(t)
	if len(got) != 2 || got[0] != protocol.EventPlayerDisconnected || got[1] != protocol.EventPlayersUpdate {
		t.Fatalf("remaining player events = %v", got)
	}
	up, _ := c1.last(t, protocol.EventPlayersUpdate)
	if pu, _ := protocol.DecodePayload[protocol.PlayersUpdate](up); pu.BothConnected {
		t.Fatalf("bothConnected true after disconnect")
	}
	if len(c2.events(t)) != 0 {
		t.Fatalf("leaver received frames after close")
	}
}

func TestRoomLeaveUnknownIsNoop(t *testing.T) {
	r, c1, _ := startedRoom(t)
	r.handle(leaveCmd{ID: "ghost"})
	if !r.match.Started || len(c1.events(t)) != 0 {
		t.Fatalf("unknown leave changed the match")
	}
}

func TestRoomRejoinTakesFreedSlot(t *testing.T) {
	r, _, _ := startedRoom(t)
	r.handle(leaveCmd{ID: "p1"})

	c3 := &fakeConn{}
	res := join(t, r, "p3", c3)
	if res.Err != nil || res.Slot != 1 {
		t.Fatalf("rejoin = %+v, want slot 1", res)
	}
	r.handle(startCmd{ID: "p3"})
	if !r.match.Started {
		t.Fatalf("new slot 1 player could not start")
	}
}

func TestRoomTickIdleDoesNotBroadcast(t *testing.T) {
	r := newTestRoom()
	c1 := &fakeConn{}
	join(t, r, "p1", c1)
	join(t, r, "p2", &fakeConn{})
	c1.reset()

	before := r.match.Ball
	r.step(time.Now())
	if r.match.Ball != before {
		t.Fatalf("ball moved while not started")
	}
	if len(c1.events(t)) != 0 {
		t.Fatalf("idle tick broadcast %v", c1.events(t))
	}
	if r.metrics.TickCount != 1 || r.metrics.RunningTicks != 0 {
		t.Fatalf("tick metrics = %d/%d", r.metrics.TickCount, r.metrics.RunningTicks)
	}
}

func TestRoomTickBroadcastsEveryRunningTick(t *testing.T) {
	r, c1, c2 := startedRoom(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		now = now.Add(game.TickInterval)
		r.step(now)
	}
	for _, c := range []*fakeConn{c1, c2} {
		got := c.events(t)
		if len(got) != 3 {
			t.Fatalf("events = %v, want 3 gameStateUpdate", got)
		}
		for _, e := range got {
			if e != protocol.EventGameStateUpdate {
				t.Fatalf("unexpected event %q", e)
			}
		}
	}
}

func TestRoomTickPaddleCollision(t *testing.T) {
	r, c1, _ := startedRoom(t)
	now := time.Now()
	r.clock.last = now.Add(-game.TickInterval)
	r.match.Player1.Y = 160
	r.match.Ball = game.Ball{X: 25, Y: 180, SpeedX: -3, SpeedY: 0, Size: game.BallSize, CurrentSpeed: 3}

	r.step(now)

	env, ok := c1.last(t, protocol.EventGameStateUpdate)
	if !ok {
		t.Fatalf("missing gameStateUpdate")
	}
	st := decodeState(t, env)
	if st.Ball.SpeedX <= 0 {
		t.Fatalf("speedX = %f, want positive", st.Ball.SpeedX)
	}
	want := math.Min(3*game.DefaultAcceleration, game.MaxBallSpeed)
	if math.Abs(st.Ball.CurrentSpeed-want) > 1e-9 {
		t.Fatalf("currentSpeed = %f, want %f", st.Ball.CurrentSpeed, want)
	}
	if r.metrics.PaddleHits != 1 || r.metrics.WallBounces != 0 {
		t.Fatalf("hits/bounces = %d/%d", r.metrics.PaddleHits, r.metrics.WallBounces)
	}
}

func TestRoomTickWallBounceCounted(t *testing.T) {
	r, _, _ := startedRoom(t)
	now := time.Now()
	r.clock.last = now.Add(-game.TickInterval)
	r.match.Ball = game.Ball{X: 400, Y: 2, SpeedX: 3, SpeedY: -3, Size: game.BallSize, CurrentSpeed: 3}

	r.step(now)

	if r.match.Ball.SpeedY != 3 {
		t.Fatalf("speedY = %f, want 3", r.match.Ball.SpeedY)
	}
	if r.metrics.WallBounces != 1 || r.metrics.PaddleHits != 0 {
		t.Fatalf("bounces/hits = %d/%d", r.metrics.WallBounces, r.metrics.PaddleHits)
	}
}

func TestRoomTickScoring(t *testing.T) {
	r, c1, _ := startedRoom(t)
	now := time.Now()
	r.clock.last = now.Add(-game.TickInterval)
	r.match.Player2.Y = 0
	r.match.Ball = game.Ball{X: 799, Y: 200, SpeedX: 3, SpeedY: 0, Size: game.BallSize, CurrentSpeed: 3}

	r.step(now)

	env, _ := c1.last(t, protocol.EventGameStateUpdate)
	st := decodeState(t, env)
	if st.Paddles.Player1.Score != 1 || st.Paddles.Player2.Score != 0 {
		t.Fatalf("scores = %d-%d, want 1-0", st.Paddles.Player1.Score, st.Paddles.Player2.Score)
	}
	if st.Ball.X != 400 || st.Ball.Y != 200 || st.Ball.SpeedX != -game.InitialBallSpeed {
		t.Fatalf("ball after point = %+v", st.Ball)
	}
	if r.metrics.PointsScored != 1 {
		t.Fatalf("PointsScored = %d", r.metrics.PointsScored)
	}
}

func TestRoomDispatch(t *testing.T) {
	r, _, _ := startedRoom(t)

	r.dispatch("p1", []byte(`{"event":"paddleMove","data":{"y":77}}`))
	r.handle(<-r.inbox)
	if r.match.Player1.Y != 77 {
		t.Fatalf("paddle y = %f, want 77", r.match.Player1.Y)
	}

	for _, frame := range []string{
		`garbage`,
		`{"event":"paddleMove"}`,
		`{"event":"paddleMove","data":{"x":1}}`,
		`{"event":"fly"}`,
	} {
		r.dispatch("p1", []byte(frame))
	}
	if n := len(r.inbox); n != 0 {
		t.Fatalf("%d commands queued from invalid frames", n)
	}
	if r.metrics.FramesMalformed != 3 {
		t.Fatalf("FramesMalformed = %d, want 3", r.metrics.FramesMalformed)
	}

	r.dispatch("p2", []byte(`{"event":"startGame"}`))
	if cmd, ok := (<-r.inbox).(startCmd); !ok || cmd.ID != "p2" {
		t.Fatalf("startGame not mapped to startCmd")
	}
}

func TestRoomRunServesCommands(t *testing.T) {
	r := newTestRoom()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	c1 := &fakeConn{}
	slot, err := r.Join(ctx, "p1", c1)
	if err != nil || slot != 1 {
		t.Fatalf("Join = %d, %v", slot, err)
	}
	st, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Connected != 1 || st.State.GameStarted {
		t.Fatalf("status = %+v", st)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
	if !c1.isClosed() {
		t.Fatalf("conn not closed on shutdown")
	}
	if _, err := r.Join(context.Background(), "p2", &fakeConn{}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("Join after stop err = %v, want ErrRoomClosed", err)
	}
}

func TestRoomJoinTimeoutReleasesSlot(t *testing.T) {
	r := newTestRoom()

	// 房间尚未运行，加入命令留在收件箱中直到超时
	stale := &fakeConn{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Join(ctx, "stale", stale); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Join err = %v, want DeadlineExceeded", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(runCtx) }()
	defer func() {
		stop()
		<-errc
	}()

	for i, id := range []string{"p1", "p2"} {
		slot, err := r.Join(runCtx, id, &fakeConn{})
		if err != nil || slot != i+1 {
			t.Fatalf("Join %s = %d, %v, want slot %d", id, slot, err, i+1)
		}
	}
	st, err := r.Snapshot(runCtx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Connected != 2 {
		t.Fatalf("connected = %d, want 2", st.Connected)
	}
	if !stale.isClosed() {
		t.Fatalf("timed-out conn not closed")
	}
}

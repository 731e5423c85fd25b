package server

import (
	"context"
	"time"

	"golang.org/x/exp/rand"

	"pongarena/game"
	"pongarena/protocol"
)

// tickClock 记录上一次 Tick 的墙钟时间，用于按实际间隔缩放位移
type tickClock struct {
	last time.Time
}

// delta 返回距上次 Tick 的间隔；首个 Tick 按名义间隔计
func (c *tickClock) delta(now time.Time) time.Duration {
	d := game.TickInterval
	if !c.last.IsZero() {
		d = now.Sub(c.last)
	}
	c.last = now
	return d
}

// Run 房间主循环（单协程推进世界），直到 ctx 取消
func (r *Room) Run(ctx context.Context) error {
	ticker := time.NewTicker(game.TickInterval)
	defer ticker.Stop()
	defer close(r.done)

	Log.Infow("room loop started", "tick_hz", game.TickHz, "acceleration", r.engine.Acceleration())
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			Log.Info("room loop stopped")
			return nil
		case cmd := <-r.inbox:
			r.handle(cmd)
		case now := <-ticker.C:
			r.step(now)
		}
	}
}

// step 一个 Tick：两人在场且已开局才推进物理并广播
func (r *Room) step(now time.Time) {
	start := time.Now()
	delta := r.clock.delta(now)

	running := r.match.Started && r.players.BothConnected()
	if running {
		res := r.engine.Step(r.match, game.MoveRatio(delta))
		if res.WallBounce {
			r.metrics.IncWallBounces()
		}
		if res.PaddleHit != 0 {
			r.metrics.IncPaddleHits()
		}
		if res.Scorer != 0 {
			r.metrics.IncPointsScored()
			Log.Infow("point scored", "slot", res.Scorer,
				"score", [2]int{r.match.Player1.Score, r.match.Player2.Score})
		}
		r.broadcastState(protocol.EventGameStateUpdate)
	}
	r.metrics.AddTick(time.Since(start).Nanoseconds(), running)
}

func newSeededRand() *rand.Rand {
	return rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
}

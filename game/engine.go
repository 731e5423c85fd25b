package game

import (
	"math"

	"golang.org/x/exp/rand"
)

// ServeDirection 发球方向
type ServeDirection int

const (
	ServeRandom        ServeDirection = iota // 开局：水平方向随机
	ServeTowardPlayer1                       // 向左
	ServeTowardPlayer2                       // 向右
)

// StepResult 单个 Tick 内发生的事件，供日志与指标使用
type StepResult struct {
	WallBounce bool
	PaddleHit  int // 击中球拍的槽位，0 表示未击中
	Scorer     int // 得分槽位，0 表示无人得分
}

// Engine 固定步长物理引擎。非并发安全，由房间协程独占
type Engine struct {
	accel float64
	rng   *rand.Rand
}

// NewEngine rng 为空时使用固定种子
func NewEngine(accel float64, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Engine{accel: accel, rng: rng}
}

// Acceleration 返回击球加速倍率
func (e *Engine) Acceleration() float64 { return e.accel }

// Serve 球回到中心并以初始速度发出，竖直分量随机
func (e *Engine) Serve(m *Match, dir ServeDirection) {
	b := &m.Ball
	b.X = WorldWidth / 2
	b.Y = WorldHeight / 2
	b.Size = BallSize
	b.CurrentSpeed = InitialBallSpeed

	vertical := e.rng.Float64()*2 - 1 // [-1, 1)

	switch dir {
	case ServeTowardPlayer1:
		b.SpeedX = -InitialBallSpeed
	case ServeTowardPlayer2:
		b.SpeedX = InitialBallSpeed
	default:
		if e.rng.Float64() > 0.5 {
			b.SpeedX = InitialBallSpeed
		} else {
			b.SpeedX = -InitialBallSpeed
		}
	}
	b.SpeedY = InitialBallSpeed * vertical
}

// Reset 整局重置：比分清零、停止比赛、球拍回中、重新发球
func (e *Engine) Reset(m *Match) {
	m.Started = false
	m.Player1 = Paddle{Y: DefaultPaddleY}
	m.Player2 = Paddle{Y: DefaultPaddleY}
	e.Serve(m, ServeRandom)
}

// Step 推进一个 Tick。碰撞只在移动后的位置上检测，不做子步插值，
// 高速时可能穿透墙或球拍。
func (e *Engine) Step(m *Match, moveRatio float64) StepResult {
	var res StepResult
	b := &m.Ball

	b.X += b.SpeedX * moveRatio
	b.Y += b.SpeedY * moveRatio

	if b.Y <= 0 || b.Y >= WorldHeight {
		b.SpeedY = -b.SpeedY
		res.WallBounce = true
	}

	if b.X <= LeftPaddleLine && within(b.Y, m.Player1.Y) {
		e.bounce(b)
		res.PaddleHit = 1
	}
	if b.X >= RightPaddleLine && within(b.Y, m.Player2.Y) {
		e.bounce(b)
		res.PaddleHit = 2
	}

	// 同一 Tick 内至多一方得分
	if b.X <= 0 {
		m.Player2.Score++
		e.Serve(m, ServeTowardPlayer2)
		res.Scorer = 2
	} else if b.X >= WorldWidth {
		m.Player1.Score++
		e.Serve(m, ServeTowardPlayer1)
		res.Scorer = 1
	}
	return res
}

// bounce 水平反向并按比例加速，保持方向只放大幅度
func (e *Engine) bounce(b *Ball) {
	b.SpeedX = -b.SpeedX
	if b.CurrentSpeed <= 0 {
		b.CurrentSpeed = InitialBallSpeed
	}
	newSpeed := math.Min(b.CurrentSpeed*e.accel, MaxBallSpeed)
	ratio := newSpeed / b.CurrentSpeed
	b.CurrentSpeed = newSpeed
	b.SpeedX *= ratio
	b.SpeedY *= ratio
}

func within(y, paddleTop float64) bool {
	return y >= paddleTop && y <= paddleTop+PaddleHeight
}

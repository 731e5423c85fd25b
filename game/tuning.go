package game

import "time"

// 世界常量：客户端按同一坐标系渲染，运行期不可修改
const (
	WorldWidth      = 800.0
	WorldHeight     = 400.0
	PaddleHeight    = 80.0
	LeftPaddleLine  = 30.0  // 左侧球拍击球线
	RightPaddleLine = 760.0 // 右侧球拍击球线
	BallSize        = 10.0

	InitialBallSpeed    = 3.0
	MaxBallSpeed        = 15.0
	DefaultAcceleration = 1.1 // 每次击球的速度倍率
	MinAcceleration     = 1.1
	MaxAcceleration     = 1.2

	DefaultPaddleY = (WorldHeight - PaddleHeight) / 2 // 160
)

// TickHz 物理推进频率
const TickHz = 60

// TickInterval 名义 Tick 间隔（1000/60 ms）
const TickInterval = time.Second / TickHz

// MoveRatio 将实际经过的时间换算为名义 Tick 的倍数
func MoveRatio(delta time.Duration) float64 {
	return float64(delta) / float64(TickInterval)
}

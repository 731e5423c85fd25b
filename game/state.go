package game

// 服务端权威的对局状态，只在房间协程内修改

// Ball 球的位置、速度分量与当前标量速度
type Ball struct {
	X, Y           float64
	SpeedX, SpeedY float64
	Size           float64
	CurrentSpeed   float64 // 速度标量，始终 <= MaxBallSpeed
}

// Paddle 球拍纵坐标（上沿）与该侧得分
type Paddle struct {
	Y     float64 // 球拍上沿
	Score int
}

// Match 一局比赛的完整快照
type Match struct {
	Ball    Ball
	Player1 Paddle
	Player2 Paddle
	Started bool
}

// NewMatch 返回位于世界中心的初始状态（尚未开球）
func NewMatch() *Match {
	return &Match{
		Ball: Ball{
			X:            WorldWidth / 2,
			Y:            WorldHeight / 2,
			SpeedX:       InitialBallSpeed,
			SpeedY:       InitialBallSpeed,
			Size:         BallSize,
			CurrentSpeed: InitialBallSpeed,
		},
		Player1: Paddle{Y: DefaultPaddleY},
		Player2: Paddle{Y: DefaultPaddleY},
	}
}

// Paddle 按槽位取球拍，未知槽位返回 nil
func (m *Match) Paddle(slot int) *Paddle {
	switch slot {
	case 1:
		return &m.Player1
	case 2:
		return &m.Player2
	default:
		return nil
	}
}

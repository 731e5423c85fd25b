package protocol

// MatchState 广播给客户端的完整快照，从不发送差量

type MatchState struct {
	Ball        BallState    `json:"ball"`
	Paddles     PaddlesState `json:"paddles"`
	GameStarted bool         `json:"gameStarted"`
}

type BallState struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	SpeedX       float64 `json:"speedX"`
	SpeedY       float64 `json:"speedY"`
	Size         float64 `json:"size"`
	CurrentSpeed float64 `json:"currentSpeed"`
}

type PaddlesState struct {
	Player1 PaddleState `json:"player1"`
	Player2 PaddleState `json:"player2"`
}

type PaddleState struct {
	Y     float64 `json:"y"`
	Score int     `json:"score"`
}

package protocol

import "encoding/json"

// 事件名沿用浏览器客户端已使用的名称
const (
	// 客户端 -> 服务端
	EventStartGame  = "startGame"
	EventPaddleMove = "paddleMove"

	// 服务端 -> 客户端
	EventPlayerNumber       = "playerNumber"
	EventPlayersUpdate      = "playersUpdate"
	EventGameFull           = "gameFull"
	EventGameStart          = "gameStart"
	EventGameStateUpdate    = "gameStateUpdate"
	EventPlayerDisconnected = "playerDisconnected"
)

// GameFullReason 第三个连接收到的拒绝原因
const GameFullReason = "game already has 2 players"

// Envelope 所有帧的外层结构：{"event":"...","data":...}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type PlayersUpdate struct {
	BothConnected bool `json:"bothConnected"`
}

// PaddleMove 入站球拍位置。Y 为指针以区分缺省与 0
type PaddleMove struct {
	Y *float64 `json:"y"`
}

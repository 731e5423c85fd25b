package server

import "pongarena/protocol"

// 房间收件箱中的命令。所有对局状态的读写都经由房间协程串行处理

type joinCmd struct {
	ID    string
	Conn  Conn
	Reply chan<- JoinResult
}

// JoinResult 加入结果；Err 为 ErrGameFull 时连接已被关闭
type JoinResult struct {
	Slot int
	Err  error
}

type leaveCmd struct {
	ID string
}

type startCmd struct {
	ID string
}

type paddleCmd struct {
	ID string
	Y  float64
}

type snapshotCmd struct {
	Reply chan<- RoomStatus
}

// RoomStatus 管理接口使用的只读视图
type RoomStatus struct {
	Connected int                 `json:"connected"`
	State     protocol.MatchState `json:"state"`
}

package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount       int64 // Tick 总次数
	RunningTicks    int64 // 比赛进行中的 Tick 次数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	PaddleMoves     int64 // 被接受的球拍输入
	ActionsIgnored  int64 // 不满足前置条件而被忽略的操作
	JoinsRejected   int64 // 满员被拒绝的连接
	SendsDropped    int64 // 发送队列满被丢弃的消息
	FramesMalformed int64 // 无法解析的入站帧
	WallBounces     int64
	PaddleHits      int64
	PointsScored    int64
}

func (m *RoomMetrics) IncPaddleMoves()     { atomic.AddInt64(&m.PaddleMoves, 1) }
func (m *RoomMetrics) IncActionsIgnored()  { atomic.AddInt64(&m.ActionsIgnored, 1) }
func (m *RoomMetrics) IncJoinsRejected()   { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *RoomMetrics) IncSendsDropped()    { atomic.AddInt64(&m.SendsDropped, 1) }
func (m *RoomMetrics) IncFramesMalformed() { atomic.AddInt64(&m.FramesMalformed, 1) }
func (m *RoomMetrics) IncWallBounces()     { atomic.AddInt64(&m.WallBounces, 1) }
func (m *RoomMetrics) IncPaddleHits()      { atomic.AddInt64(&m.PaddleHits, 1) }
func (m *RoomMetrics) IncPointsScored()    { atomic.AddInt64(&m.PointsScored, 1) }

func (m *RoomMetrics) AddTick(ns int64, running bool) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
	if running {
		atomic.AddInt64(&m.RunningTicks, 1)
	}
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"running_ticks":    atomic.LoadInt64(&m.RunningTicks),
		"paddle_moves":     atomic.LoadInt64(&m.PaddleMoves),
		"actions_ignored":  atomic.LoadInt64(&m.ActionsIgnored),
		"joins_rejected":   atomic.LoadInt64(&m.JoinsRejected),
		"sends_dropped":    atomic.LoadInt64(&m.SendsDropped),
		"frames_malformed": atomic.LoadInt64(&m.FramesMalformed),
		"wall_bounces":     atomic.LoadInt64(&m.WallBounces),
		"paddle_hits":      atomic.LoadInt64(&m.PaddleHits),
		"points_scored":    atomic.LoadInt64(&m.PointsScored),
		"avg_tick_ms":      avgMs,
	}
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pongarena/game"
)

// HandleAdminConfig 只读：世界常量运行期不可修改
// GET /admin/config
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type cfg struct {
		WorldWidth      float64 `json:"worldWidth"`
		WorldHeight     float64 `json:"worldHeight"`
		PaddleHeight    float64 `json:"paddleHeight"`
		LeftPaddleLine  float64 `json:"leftPaddleLine"`
		RightPaddleLine float64 `json:"rightPaddleLine"`
		InitialSpeed    float64 `json:"initialSpeed"`
		MaxSpeed        float64 `json:"maxSpeed"`
		Acceleration    float64 `json:"acceleration"`
		TickHz          int     `json:"tickHz"`
		ClampPaddles    bool    `json:"clampPaddles"`
	}
	writeJSON(w, cfg{
		WorldWidth:      game.WorldWidth,
		WorldHeight:     game.WorldHeight,
		PaddleHeight:    game.PaddleHeight,
		LeftPaddleLine:  game.LeftPaddleLine,
		RightPaddleLine: game.RightPaddleLine,
		InitialSpeed:    game.InitialBallSpeed,
		MaxSpeed:        game.MaxBallSpeed,
		Acceleration:    s.room.engine.Acceleration(),
		TickHz:          game.TickHz,
		ClampPaddles:    s.room.clampPaddles,
	})
}

// HandleMatch 输出当前对局快照与在线人数
// GET /admin/match
func (s *Server) HandleMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	st, err := s.room.Snapshot(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, st)
}

// HandleMetrics 输出房间运行指标
// GET /metrics
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"metrics": s.room.Metrics().Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

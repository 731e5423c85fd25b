package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server 持有唯一的房间与 HTTP 接入点，由 main 显式创建并传递
type Server struct {
	cfg      Config
	room     *Room
	upgrader websocket.Upgrader
}

// New 按配置创建服务与房间，房间需由 Run 驱动
func New(cfg Config) *Server {
	return &Server{
		cfg: cfg,
		room: NewRoom(RoomOptions{
			Acceleration: cfg.Acceleration,
			ClampPaddles: cfg.ClampPaddles,
		}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 客户端与服务同源部署；跨域部署时在此收紧
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Room 返回唯一的房间
func (s *Server) Room() *Room { return s.room }

// Run 运行房间主循环，直到 ctx 取消
func (s *Server) Run(ctx context.Context) error {
	return s.room.Run(ctx)
}

// Routes 注册 WebSocket 与管理接口
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/admin/match", s.HandleMatch)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

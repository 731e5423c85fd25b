package server

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"pongarena/game"
)

// ErrInvalidAcceleration 加速倍率超出允许区间
var ErrInvalidAcceleration = errors.New("acceleration out of range")

// Config 进程配置：.env -> 环境变量 -> 命令行参数，后者覆盖前者
type Config struct {
	Addr         string
	StaticDir    string
	Log          LogConfig
	Acceleration float64
	ClampPaddles bool // 将球拍位置限制在场地内（默认不限制，与旧客户端行为一致）
	SendQueue    int  // 每个连接的发送队列长度
}

// DefaultConfig 与原版服务一致的默认值
func DefaultConfig() Config {
	return Config{
		Addr:         ":3000",
		StaticDir:    "public",
		Log:          LogConfig{File: "app.log", Level: "info"},
		Acceleration: game.DefaultAcceleration,
		SendQueue:    64,
	}
}

// LoadConfig 读取配置。envFile 不存在时忽略
func LoadConfig(envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("pongarena", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :3000")
	fs.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "directory with client assets")
	fs.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "log file path, empty for stderr only")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	fs.BoolVar(&cfg.Log.Stdout, "log-stdout", cfg.Log.Stdout, "also log to stderr")
	fs.Float64Var(&cfg.Acceleration, "acceleration", cfg.Acceleration, "ball speed multiplier per paddle hit")
	fs.BoolVar(&cfg.ClampPaddles, "clamp-paddles", cfg.ClampPaddles, "clamp paddle y to the playfield")
	fs.IntVar(&cfg.SendQueue, "send-queue", cfg.SendQueue, "per-connection outbound queue length")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	// PORT 与部署平台约定保持一致
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Addr = ":" + v
	}
	if v, ok := lookup("PONG_ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("PONG_STATIC_DIR"); ok {
		c.StaticDir = v
	}
	if v, ok := lookup("PONG_LOG_FILE"); ok {
		c.Log.File = v
	}
	if v, ok := lookup("PONG_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("PONG_LOG_STDOUT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PONG_LOG_STDOUT: %w", err)
		}
		c.Log.Stdout = b
	}
	if v, ok := lookup("PONG_ACCELERATION"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PONG_ACCELERATION: %w", err)
		}
		c.Acceleration = f
	}
	if v, ok := lookup("PONG_CLAMP_PADDLES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PONG_CLAMP_PADDLES: %w", err)
		}
		c.ClampPaddles = b
	}
	return nil
}

func (c Config) Validate() error {
	if c.Acceleration < game.MinAcceleration || c.Acceleration > game.MaxAcceleration {
		return fmt.Errorf("%w: %.3f not in [%.1f, %.1f]", ErrInvalidAcceleration,
			c.Acceleration, game.MinAcceleration, game.MaxAcceleration)
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("send queue must be positive, got %d", c.SendQueue)
	}
	if c.Addr == "" {
		return errors.New("listen address is empty")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	return nil
}

package websocket

import (
	"time"

	"github.com/OldStager01/vm-autoscaler/pkg/config"
)

type Settings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	ClientBuffer   int
}

func NewSettings(cfg *config.WebSocketConfig) Settings {
	s := Settings{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 512,
		ClientBuffer:   defaultClientBuffer,
	}
	if cfg != nil {
		if cfg.PingInterval > 0 {
			s.PongWait = cfg.PingInterval * 10 / 9
		}
		if cfg.MaxMessageSize > 0 {
			s.MaxMessageSize = cfg.MaxMessageSize
		}
		if cfg.ClientBuffer > 0 {
			s.ClientBuffer = cfg.ClientBuffer
		}
	}
	s.PingPeriod = s.PongWait * 9 / 10
	return s
}

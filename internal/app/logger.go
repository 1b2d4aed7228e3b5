package app

import (
	"fmt"

	"github.com/jun/drivechat/internal/config"
	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON in production, console in dev
// mode.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.DevMode {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

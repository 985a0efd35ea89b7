package logger

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
)

var (
	def *slog.Logger
	zl  *zap.Logger
)

// Init настраивает глобальный slog в зависимости от среды.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "meet-service"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	// Бэкенд по умолчанию
	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h, zl = newZapHandler(cfg)
	default:
		h, zl = newStdHandler(cfg), nil
	}

	base := slog.New(traceHandler{h.WithAttrs(commonAttrs(cfg))})
	slog.SetDefault(base)
	def = base
	return base
}

// L — логгер, установленный Init; до Init — slog.Default().
func L() *slog.Logger {
	if def != nil {
		return def
	}
	return slog.Default()
}

// Sync сбрасывает буферы zap; для std ничего не делает.
func Sync() error {
	if zl == nil {
		return nil
	}
	return zl.Sync()
}

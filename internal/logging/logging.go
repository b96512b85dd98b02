package logging

import (
	"io"
	"log"
	"os"

	"github.com/xelth-com/magazzino/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup routes the standard logger to stderr and, when a log file is configured,
// to a size-rotated file. The returned closer flushes the file on shutdown.
func Setup(cfg config.LogConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	log.Printf("📝 Logging to %s (max %dMB x %d)", cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package logs

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the application logger: console output on stdout and, when enabled,
// a rotating JSON log file.
func New(cfg config.LoggingConfig) zerolog.Logger {
	return newWithConsole(cfg, os.Stdout)
}

func newWithConsole(cfg config.LoggingConfig, console io.Writer) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}}

	if cfg.File.Enabled {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level)).
		With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

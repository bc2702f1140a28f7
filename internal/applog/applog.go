// Package applog wires zerolog: human console output on stdout plus a
// rotating JSON file under the log directory.
package applog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs the global logger. dir may be empty to log to stdout only.
func Setup(dir string, level zerolog.Level) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	writers := []io.Writer{console}

	if dir != "" {
		_ = os.MkdirAll(dir, 0o755)
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(dir, "trading.log"),
			MaxSize:    100, // MB
			MaxBackups: 14,
			MaxAge:     28, // days
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

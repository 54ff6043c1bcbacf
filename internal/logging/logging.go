package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at stderr and, when path is set, a log file
// opened for append.
func Init(level zerolog.Level, path string) {
	writers := []io.Writer{os.Stderr}

	if path != "" {
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		writers = append(writers, logFile)
	}

	multi := zerolog.MultiLevelWriter(writers...)

	logger := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}

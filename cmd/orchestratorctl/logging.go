package main

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"github.com/ternarybob/orcaweaver/internal/config"
)

// buildLogger wires arbor's multi-writer logger from the resolved
// configuration, adapted from cmd/quaero/main.go's inline logger setup:
// console and/or file writers selected by cfg.Logging.Output, a memory
// writer always attached for the SSE log stream, and the level applied
// last.
func buildLogger(cfg *config.Config) arbor.ILogger {
	logger := arbor.NewLogger()

	hasConsole, hasFile := false, false
	for _, output := range cfg.Logging.Output {
		switch output {
		case "console", "stdout":
			hasConsole = true
		case "file":
			hasFile = true
		}
	}

	if hasFile {
		logger = logger.WithFileWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeFile,
			FileName:         "./logs/orcaweaver.log",
			TimeFormat:       "15:04:05",
			MaxSize:          100 * 1024 * 1024,
			MaxBackups:       3,
			TextOutput:       true,
			DisableTimestamp: false,
		})
	}
	if hasConsole || !hasFile {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       "15:04:05",
			TextOutput:       true,
			DisableTimestamp: false,
		})
	}

	logger = logger.WithMemoryWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeMemory,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	})

	return logger.WithLevelFromString(cfg.Logging.Level)
}

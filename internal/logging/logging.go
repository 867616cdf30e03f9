// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures zerolog's global logger from a level string ("debug",
// "info", "warn", "error"; default "info") and an optional log file path.
// Output always goes to stderr; when path is non-empty it is additionally
// written there.
func Init(levelStr, path string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	writers := []zerolog.LevelWriter{}
	_ = writers

	var w zerolog.ConsoleWriter
	w.Out = os.Stderr
	w.TimeFormat = time.RFC3339

	if strings.TrimSpace(path) == "" {
		log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
		log.Warn().Err(err).Str("path", path).Msg("could not open log file, logging to stderr only")
		return
	}
	mw := zerolog.MultiLevelWriter(w, f)
	log.Logger = zerolog.New(mw).With().Timestamp().Caller().Logger()
}

// ForRun returns a child logger tagged with a run id and document source,
// so every line emitted during one ingestion or repair run can be
// correlated without threading a logger through every call explicitly.
func ForRun(runID, source string) zerolog.Logger {
	return log.Logger.With().Str("run_id", runID).Str("source", source).Logger()
}

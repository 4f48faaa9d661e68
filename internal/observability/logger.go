package observability

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/nameatlas/nameatlas/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "observability.log")
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "observability", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize observability file logger at %s: %v. Using fallback.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "observability")
		closeLogger = func() error { return nil }
	}
}

package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// NewLogger creates a new hclog.Logger instance based on the YAML
// configuration and the provided name. When logger.file is set the output
// is duplicated to that file so timer-driven runs keep a durable log.
func NewLogger(cfg *config.Config, name string) hclog.Logger {
	var logLevel hclog.Level

	if cfg != nil && cfg.Logger.Level != "" {
		logLevel = getLogLevel(strings.ToUpper(cfg.Logger.Level))
	} else {
		// env variable has the second priority
		logLevelEnv := os.Getenv("VPS_SENTINEL_LOG_LEVEL")
		logLevel = getLogLevel(strings.ToUpper(logLevelEnv))
	}

	var output io.Writer = os.Stdout
	if cfg != nil && cfg.Logger.File != "" {
		f, err := os.OpenFile(cfg.Logger.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			output = io.MultiWriter(os.Stdout, f)
		}
		// A broken log file path falls back to stdout only; the scan
		// itself must still run.
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:        name,
		DisableTime: false,
		Output:      output,
		Level:       logLevel,
	})

	return logger
}

func getLogLevel(levelStr string) hclog.Level {
	switch levelStr {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		return hclog.Info
	}
}

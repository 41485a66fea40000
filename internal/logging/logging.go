// Package logging configures the process-wide go-log backend. Package
// loggers are created with Logger and write to stderr so that command
// output on stdout stays machine readable.
package logging

import (
	"fmt"
	"strings"

	golog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

const DefaultLevel = "warn"

func Logger(system string) *golog.ZapEventLogger {
	return golog.Logger(system)
}

// Setup applies level to every registered subsystem. format is "json" or
// anything else for plaintext.
func Setup(level, format string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := golog.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	cfg := golog.Config{
		Format: golog.PlaintextOutput,
		Stderr: true,
		Level:  lvl,
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		cfg.Format = golog.JSONOutput
	}
	golog.SetupLogging(cfg)
	golog.SetAllLoggers(lvl)
	return nil
}

// Fields converts alternating key/value pairs to zap fields for callers
// that log through the desugared logger.
func Fields(kv ...any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}

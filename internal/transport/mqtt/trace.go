package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/alarm-display/internal/logger"
)

// installLoggers guards the process-wide paho loggers.
var installLoggers sync.Once //nolint:gochecknoglobals // paho loggers are process-wide.

// pahoLogger forwards paho's internal log lines to zap at a fixed level.
type pahoLogger struct {
	// log receives the lines.
	log *zap.SugaredLogger
	// level is the level of every forwarded line.
	level zapcore.Level
}

// Println implements paho.Logger.
func (l pahoLogger) Println(v ...any) {
	l.write(fmt.Sprintln(v...))
}

// Printf implements paho.Logger.
func (l pahoLogger) Printf(format string, v ...any) {
	l.write(fmt.Sprintf(format, v...))
}

// write logs one trimmed line.
func (l pahoLogger) write(line string) {
	line = strings.TrimSpace(line)

	switch l.level {
	case zapcore.DebugLevel:
		l.log.Debug(line)
	case zapcore.WarnLevel:
		l.log.Warn(line)
	default:
		l.log.Error(line)
	}
}

// routePahoLogs sends paho's error and warning output to the logger in ctx.
// With trace set, paho's debug output (the packet-level wire trace) is
// logged as well, whatever the global level is. Only the first call has an effect.
func routePahoLogs(ctx context.Context, trace bool) {
	installLoggers.Do(func() {
		log := logger.FromContext(logger.WithName(ctx, "paho"))

		paho.CRITICAL = pahoLogger{log: log, level: zapcore.ErrorLevel}
		paho.ERROR = pahoLogger{log: log, level: zapcore.ErrorLevel}
		paho.WARN = pahoLogger{log: log, level: zapcore.WarnLevel}

		if trace {
			traceLog := logger.FromContext(logger.WithMinLevel(logger.WithName(ctx, "paho"), zapcore.DebugLevel))
			paho.DEBUG = pahoLogger{log: traceLog, level: zapcore.DebugLevel}
		}
	})
}

package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// tpcKVLogger writes lines of the form "<date> <time> LEVEL | node | package | message"
type tpcKVLogger struct {
	node   string
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *tpcKVLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *tpcKVLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *tpcKVLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *tpcKVLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *tpcKVLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *tpcKVLogger) Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.log("PANIC", "%s", message)
	panic(message)
}

func (l *tpcKVLogger) log(levelStr string, format string, args ...interface{}) {
	l.logger.Printf("%-5s | %-10s | %-13s | %s", levelStr, l.node, l.name, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// loggerFactory returns the logger factory of a node, all loggers write to out
func loggerFactory(node string, level logger.LogLevel, out io.Writer) logger.Factory {
	return func(pkgName string) logger.ILogger {
		return &tpcKVLogger{
			node:   node,
			name:   pkgName,
			level:  level,
			logger: log.New(out, "", log.Ldate|log.Ltime),
		}
	}
}

// ParseLogLevel converts one of debug, info, warn and error to a logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames are the named loggers of the application
var loggerNames = []string{"tpc", "wal", "store", "rpc", "transport/rpc", "cmd"}

// InitLoggers installs the logger factory of a node (e.g. "master" or "slave-1")
// and sets the level of all loggers. It must be called once before the node starts.
func InitLoggers(level, node string) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(loggerFactory(node, logLevel, os.Stdout))
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(logLevel)
	}
	return nil
}

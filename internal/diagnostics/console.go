package diagnostics

import (
	"io"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/psantana5/fnhost/pkg/logging"
)

// ConsoleSink renders events for operators, as text or JSON.
type ConsoleSink struct {
	logger   *zap.Logger
	minLevel logging.Level
}

// NewConsoleSink writes events at or above minLevel to w. format is
// "json" or anything else for human readable output.
func NewConsoleSink(w io.Writer, format string, minLevel logging.Level) *ConsoleSink {
	encCfg := zap.NewDevelopmentEncoderConfig()
	var enc zapcore.Encoder
	if format == "json" {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapLevel(minLevel))
	return &ConsoleSink{logger: zap.New(core), minLevel: minLevel}
}

// Write implements logging.Sink.
func (c *ConsoleSink) Write(e logging.Event) {
	if e.Level < c.minLevel {
		return
	}

	keys := make([]string, 0, len(e.Properties))
	for k := range e.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+2)
	fields = append(fields, zap.String("category", e.Category))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e.Properties[k]))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	if ce := c.logger.Check(zapLevel(e.Level), e.Message); ce != nil {
		ce.Time = e.Timestamp
		ce.Write(fields...)
	}
}

// Sync flushes buffered output.
func (c *ConsoleSink) Sync() error {
	return c.logger.Sync()
}

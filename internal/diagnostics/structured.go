package diagnostics

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/psantana5/fnhost/pkg/logging"
)

// EventGenerator consumes structured trace events.
type EventGenerator interface {
	LogFunctionTraceEvent(level logging.Level, subscriptionID, appName, functionName, eventName, source, details, summary string)
}

// StructuredSink forwards every non-user event to an EventGenerator,
// stamped with the process identity.
type StructuredSink struct {
	gen            EventGenerator
	subscriptionID string
	appName        string
}

// NewStructuredSink creates the process-wide structured sink.
func NewStructuredSink(gen EventGenerator, subscriptionID, appName string) *StructuredSink {
	return &StructuredSink{
		gen:            gen,
		subscriptionID: subscriptionID,
		appName:        appName,
	}
}

// Write implements logging.Sink.
func (s *StructuredSink) Write(e logging.Event) {
	if IsUserCategory(e.Category) {
		return
	}

	details := ""
	if e.Err != nil {
		details = Sanitize(e.Err.Error())
	}

	s.gen.LogFunctionTraceEvent(
		e.Level,
		s.subscriptionID,
		s.appName,
		e.String(logging.PropFunctionName),
		e.String(logging.PropEventName),
		e.Category,
		details,
		Sanitize(e.Message),
	)
}

// ZapEventGenerator emits one JSON object per structured event.
type ZapEventGenerator struct {
	logger *zap.Logger
}

// NewZapEventGenerator writes JSON events to w.
func NewZapEventGenerator(w io.Writer) *ZapEventGenerator {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "summary"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapcore.DebugLevel)
	return &ZapEventGenerator{logger: zap.New(core)}
}

func (g *ZapEventGenerator) LogFunctionTraceEvent(level logging.Level, subscriptionID, appName, functionName, eventName, source, details, summary string) {
	g.logger.Log(zapLevel(level), summary,
		zap.String("subscriptionId", subscriptionID),
		zap.String("appName", appName),
		zap.String("functionName", functionName),
		zap.String("eventName", eventName),
		zap.String("source", source),
		zap.String("details", details),
	)
}

// Sync flushes buffered output.
func (g *ZapEventGenerator) Sync() error {
	return g.logger.Sync()
}

func zapLevel(l logging.Level) zapcore.Level {
	switch l {
	case logging.DEBUG:
		return zapcore.DebugLevel
	case logging.WARN:
		return zapcore.WarnLevel
	case logging.ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

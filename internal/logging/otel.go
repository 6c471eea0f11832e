package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// otelScope is the instrumentation scope of bridged log records.
const otelScope = "github.com/fyrsmithlabs/mcp-server-qdrant"

// WithOTel returns a logger that also emits every entry to provider.
// A nil provider returns l unchanged.
func (l *Logger) WithOTel(provider log.LoggerProvider) *Logger {
	if provider == nil {
		return l
	}
	bridge := otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(provider))
	return &Logger{
		zap: l.zap.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, bridge)
		})),
		config: l.config,
	}
}

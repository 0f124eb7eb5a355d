package logging

import "fmt"

// GooseLogger adapts Logger to goose's Logger interface.
type GooseLogger struct {
	logger *Logger
}

// NewGooseLogger returns a goose logger backed by l, or by the global
// logger when l is nil.
func NewGooseLogger(l *Logger) *GooseLogger {
	if l == nil {
		l = Get()
	}
	return &GooseLogger{logger: l}
}

func (g *GooseLogger) Printf(format string, v ...interface{}) {
	g.logger.Debug(fmt.Sprintf(format, v...), Fields{"component": "migrate"})
}

func (g *GooseLogger) Fatalf(format string, v ...interface{}) {
	g.logger.base.WithField("component", "migrate").Fatalf(format, v...)
}

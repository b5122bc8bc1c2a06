package core

// Logger is the leveled logging interface used by the motion engine.
// Host builds pass a *logrus.Entry; firmware targets route it to the
// serial console.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{}) {}
func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Warnf(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}

// WriterLogger adapts a DebugWriter to Logger. Debug output is dropped
// unless Debug is set, as platform consoles are slow.
type WriterLogger struct {
	Write DebugWriter
	Debug bool
}

func (l *WriterLogger) Debugf(format string, args ...interface{}) {
	if l.Debug {
		l.emit("DEBUG ", format, args)
	}
}

func (l *WriterLogger) Infof(format string, args ...interface{}) {
	l.emit("INFO ", format, args)
}

func (l *WriterLogger) Warnf(format string, args ...interface{}) {
	l.emit("WARN ", format, args)
}

func (l *WriterLogger) Errorf(format string, args ...interface{}) {
	l.emit("ERROR ", format, args)
}

func (l *WriterLogger) emit(level, format string, args []interface{}) {
	if l.Write == nil {
		return
	}
	l.Write(level + sprintf(format, args...))
}

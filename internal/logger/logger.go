package logger

import "chordkv/internal/domain"

// Field is a single structured key:value pair.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal structured-logging interface used across the
// module. Every package takes a Logger via a functional option rather
// than reaching for a global.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	WithEndpoint(e domain.Endpoint) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F builds a Field concisely.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FEndpoint serializes a domain.Endpoint into a readable structured field.
func FEndpoint(key string, e domain.Endpoint) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   e.NodeId.ToHexString(true),
			"addr": e.Addr(),
		},
	}
}

// NopLogger is a Logger implementation that discards everything.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger                  { return l }
func (l *NopLogger) With(fields ...Field) Logger                { return l }
func (l *NopLogger) WithEndpoint(e domain.Endpoint) Logger      { return l }
func (l *NopLogger) Debug(msg string, fields ...Field)          {}
func (l *NopLogger) Info(msg string, fields ...Field)           {}
func (l *NopLogger) Warn(msg string, fields ...Field)           {}
func (l *NopLogger) Error(msg string, fields ...Field)          {}

package obs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a small leveled logger backed by zap or logrus.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

type LogConfig struct {
	Backend string
	Level   string
}

// NewLogger builds a JSON logger writing to w (stdout when nil).
func NewLogger(cfg LogConfig, w io.Writer) (Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "zap":
		return newZapLogger(w, level)
	case "logrus":
		return newLogrusLogger(w, level)
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

type ZapLogger struct{ L *zap.Logger }

func newZapLogger(w io.Writer, level string) (ZapLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return ZapLogger{}, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), lvl)
	return ZapLogger{L: zap.New(core)}, nil
}

func (z ZapLogger) Debug(msg string, f Fields) { z.L.Debug(msg, zapFields(f)...) }
func (z ZapLogger) Info(msg string, f Fields)  { z.L.Info(msg, zapFields(f)...) }
func (z ZapLogger) Warn(msg string, f Fields)  { z.L.Warn(msg, zapFields(f)...) }
func (z ZapLogger) Error(msg string, f Fields) { z.L.Error(msg, zapFields(f)...) }

func (z ZapLogger) Sync() error { return z.L.Sync() }

func zapFields(f Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.String(k, err.Error()))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

type LogrusLogger struct{ E *logrus.Entry }

func newLogrusLogger(w io.Writer, level string) (LogrusLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return LogrusLogger{}, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	})
	return LogrusLogger{E: logrus.NewEntry(l)}, nil
}

func (l LogrusLogger) Debug(msg string, f Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l LogrusLogger) Info(msg string, f Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

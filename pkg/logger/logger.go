package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fastygo/relational/domain"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	actorKey     ctxKey = "actor"
)

// Config mirrors config.LoggerConfig without importing the config package.
type Config struct {
	Level       string
	Encoding    string
	Service     string
	Environment string
}

// New builds a zap.Logger writing to stdout. Unknown levels fall back to info.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		level,
	)

	var fields []zap.Field
	if cfg.Service != "" {
		fields = append(fields, zap.String("service", cfg.Service))
	}
	if cfg.Environment != "" {
		fields = append(fields, zap.String("env", cfg.Environment))
	}
	return zap.New(core, zap.AddCaller(), zap.Fields(fields...)), nil
}

// ContextWithRequestID attaches a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithActor attaches the acting user or service to the context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithRequestID enriches the logger with the request ID and actor stored in the context.
func WithRequestID(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}
	var fields []zap.Field
	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// Entity logs one graph node as {"id","type"} under name.
func Entity(name string, key domain.EntityKey) zap.Field {
	return zap.Object(name, entityMarshaler(key))
}

type entityMarshaler domain.EntityKey

func (k entityMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", k.ID)
	enc.AddString("type", string(k.Type))
	return nil
}

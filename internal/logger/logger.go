package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxComponent ctxKey = "component"
)

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out)

	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	switch lvl {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	lctx := base.With().Timestamp()
	if cfg.Component != "" {
		lctx = lctx.Str("component", cfg.Component)
	}
	return lctx.Logger()
}

// FromContext returns a child logger with context fields applied.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	if v := ctx.Value(ctxReqIDKey); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("request_id", s)
		}
	}
	if v := ctx.Value(ctxComponent); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("component", s)
		}
	}
	l := w.Logger()
	return &l
}

package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge funnels slog records into a zerolog sink so packages can
// depend on *slog.Logger while each binary keeps a single zerolog
// output. Groups are flattened into dot-separated keys.
type slogBridge struct {
	zl     *zerolog.Logger
	prefix string
	fields []slog.Attr
}

func NewSlog(zl *zerolog.Logger) *slog.Logger {
	return slog.New(&slogBridge{zl: zl})
}

func (b *slogBridge) Enabled(_ context.Context, lvl slog.Level) bool {
	return toZerologLevel(lvl) >= zerolog.GlobalLevel()
}

func (b *slogBridge) Handle(ctx context.Context, r slog.Record) error {
	ev := FromContext(ctx, b.zl).WithLevel(toZerologLevel(r.Level))
	for _, a := range b.fields {
		ev = appendField(ev, a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = appendField(ev, b.prefix+a.Key, a.Value)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

// WithAttrs resolves the group prefix at attachment time, so the stored
// field keys are already fully qualified.
func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := b.clone()
	for _, a := range attrs {
		a.Key = b.prefix + a.Key
		cp.fields = append(cp.fields, a)
	}
	return cp
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	cp := b.clone()
	cp.prefix += name + "."
	return cp
}

func (b *slogBridge) clone() *slogBridge {
	return &slogBridge{
		zl:     b.zl,
		prefix: b.prefix,
		fields: append([]slog.Attr(nil), b.fields...),
	}
}

func toZerologLevel(lvl slog.Level) zerolog.Level {
	switch {
	case lvl < slog.LevelInfo:
		return zerolog.DebugLevel
	case lvl < slog.LevelWarn:
		return zerolog.InfoLevel
	case lvl < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func appendField(ev *zerolog.Event, key string, v slog.Value) *zerolog.Event {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return ev.Str(key, v.String())
	case slog.KindInt64:
		return ev.Int64(key, v.Int64())
	case slog.KindUint64:
		return ev.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		return ev.Float64(key, v.Float64())
	case slog.KindBool:
		return ev.Bool(key, v.Bool())
	case slog.KindDuration:
		return ev.Dur(key, v.Duration())
	case slog.KindTime:
		return ev.Time(key, v.Time())
	case slog.KindGroup:
		for _, ga := range v.Group() {
			ev = appendField(ev, key+"."+ga.Key, ga.Value)
		}
		return ev
	default:
		return ev.Interface(key, v.Any())
	}
}

package logger

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type zlHandler struct {
	zl    *zerolog.Logger
	level slog.Level
	attr  []slog.Attr
	group string
}

func (h *zlHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *zlHandler) Handle(ctx context.Context, r slog.Record) error {
	var ev *zerolog.Event
	switch {
	case r.Level <= slog.LevelDebug:
		ev = h.zl.Debug()
	case r.Level < slog.LevelWarn:
		ev = h.zl.Info()
	case r.Level < slog.LevelError:
		ev = h.zl.Warn()
	default:
		ev = h.zl.Error()
	}

	if id := middleware.GetReqID(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	// accumulated attrs first, then the record's
	for _, a := range h.attr {
		ev = addAttr(ev, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = addAttr(ev, h.group, a)
		return true
	})

	ev.Msg(r.Message)
	return nil
}

func (h *zlHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attr = make([]slog.Attr, 0, len(h.attr)+len(attrs))
	cp.attr = append(cp.attr, h.attr...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		cp.attr = append(cp.attr, a)
	}
	return &cp
}

func (h *zlHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	if cp.group != "" {
		cp.group += "." + name
	} else {
		cp.group = name
	}
	return &cp
}

func addAttr(ev *zerolog.Event, group string, a slog.Attr) *zerolog.Event {
	a.Value = a.Value.Resolve()
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return ev.Str(key, a.Value.String())
	case slog.KindInt64:
		return ev.Int64(key, a.Value.Int64())
	case slog.KindFloat64:
		return ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		return ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(key, a.Value.Duration())
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			ev = addAttr(ev, key, ga)
		}
		return ev
	default:
		return ev.Interface(key, a.Value.Any())
	}
}

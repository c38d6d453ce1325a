package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys written by Event.
const (
	EventIDKey   = "event_id"
	EventNameKey = "event_name"
)

// EventID identifies a kind of log statement, independent of its message.
type EventID struct {
	ID   int64
	Name string
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e EventID) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64(EventIDKey, e.ID)
	if e.Name != "" {
		enc.AddString(EventNameKey, e.Name)
	}
	return nil
}

// Event tags a log call with an event identity. The sinks receive it as
// inline event_id and event_name fields.
//
//	logger.Warn(ctx, "cache miss", logging.Event(1002, "CacheMiss"), zap.String("key", k))
func Event(id int64, name string) zap.Field {
	return zap.Inline(EventID{ID: id, Name: name})
}

// eventFromFields returns the first event identity found in fields.
func eventFromFields(fields []zap.Field) (EventID, bool) {
	for _, f := range fields {
		if f.Type != zapcore.InlineMarshalerType {
			continue
		}
		if ev, ok := f.Interface.(EventID); ok {
			return ev, true
		}
	}
	return EventID{}, false
}

package logutil

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Values groups a set of zap.Fields under a single "values" object field.
// Zero reflection, same speed as inline fields.
func Values(fields ...zap.Field) zap.Field {
	return zap.Object("values", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, f := range fields {
			f.AddTo(enc)
		}
		return nil
	}))
}

// Person tags a log entry with the acting person's id.
func Person(id uuid.UUID) zap.Field {
	return zap.String("person", id.String())
}

// Room tags a log entry with a pub or table id under the given key.
func Room(key string, id uuid.UUID) zap.Field {
	return zap.String(key, id.String())
}

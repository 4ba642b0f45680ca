package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextDeviceKey ctxKey = "deviceID"

func DeviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if deviceID, ok := ctx.Value(ContextDeviceKey).(string); ok {
		return deviceID
	}
	return ""
}

func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ContextDeviceKey, deviceID)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}

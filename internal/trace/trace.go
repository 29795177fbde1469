// Package trace 给一轮刷新/一次请求挂 trace id，方便把同一周期的日志串起来。
package trace

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

type ctxKey struct{}

// NewTraceID 毫秒时间戳 + 随机后缀，进程内够用
func NewTraceID() string {
	return fmt.Sprintf("%d%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func TraceID(ctx context.Context) string {
	if ctx != nil {
		if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
			return v
		}
	}
	return "-"
}

func Log(ctx context.Context, format string, args ...any) {
	log.Printf("[%s] %s", TraceID(ctx), fmt.Sprintf(format, args...))
}

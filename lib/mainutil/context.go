package mainutil

import (
	"context"
)

type contextKey string

// ConnContextKey and RequestContextKey are the context.Context keys under which
// per-connection and per-request state is stored.
const (
	ConnContextKey    = contextKey("verserve.ConnContext")
	RequestContextKey = contextKey("verserve.RequestContext")
)

var (
	gRootContext context.Context    = context.Background()
	gRootCancel  context.CancelFunc = func() {}
)

func InitContext() {
	gRootContext, gRootCancel = context.WithCancel(context.Background())
}

func RootContext() context.Context {
	return gRootContext
}

func CancelRootContext() {
	gRootCancel()
}

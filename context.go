package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronos-tachyon/verserve/lib/mainutil"
)

// ConnContext holds the state shared by every request on one connection.
type ConnContext struct {
	Context    context.Context
	Logger     zerolog.Logger
	Subsystem  string
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// RequestContext holds the state of one in-flight request.
type RequestContext struct {
	Context   context.Context
	Logger    zerolog.Logger
	Subsystem string
	XID       xid.ID
	Metrics   *Metrics
	Writer    WrappedWriter
	StartTime time.Time
	EndTime   time.Time
}

func GetConnContext(ctx context.Context) *ConnContext {
	cc, _ := ctx.Value(mainutil.ConnContextKey).(*ConnContext)
	return cc
}

func WithConnContext(ctx context.Context, cc *ConnContext) context.Context {
	if ctx == nil {
		panic(errors.New("ctx is nil"))
	}
	if cc == nil {
		panic(errors.New("cc is nil"))
	}
	return context.WithValue(ctx, mainutil.ConnContextKey, cc)
}

func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(mainutil.RequestContextKey).(*RequestContext)
	return rc
}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	if ctx == nil {
		panic(errors.New("ctx is nil"))
	}
	if rc == nil {
		panic(errors.New("rc is nil"))
	}
	return context.WithValue(ctx, mainutil.RequestContextKey, rc)
}

func MakeBaseContextFunc(ctx context.Context) func(net.Listener) context.Context {
	return func(l net.Listener) context.Context {
		return ctx
	}
}

func MakeConnContextFunc(subsystem string) func(context.Context, net.Conn) context.Context {
	return func(ctx context.Context, c net.Conn) context.Context {
		cc := &ConnContext{
			Logger:     log.Logger.With().Str("server", subsystem).Logger(),
			Subsystem:  subsystem,
			LocalAddr:  c.LocalAddr(),
			RemoteAddr: c.RemoteAddr(),
		}
		ctx = WithConnContext(ctx, cc)
		ctx = cc.Logger.WithContext(ctx)
		cc.Context = ctx
		return ctx
	}
}

package mainutil

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chronos-tachyon/verserve/internal/misc"
)

// HealthWatchFunc is called whenever a subsystem's health changes.  isStopped
// is true for the final call, made when the MultiServer stops.
type HealthWatchFunc func(subsystemName string, isHealthy bool, isStopped bool)

// WatchID identifies a registered HealthWatchFunc.
type WatchID uint64

// MultiServer runs a collection of servers until one of them fails or the
// process receives SIGINT or SIGTERM.  SIGHUP runs the reload hooks.
//
// Stopping is abrupt: listeners and open connections are closed without
// waiting for in-flight requests.
type MultiServer struct {
	wg         sync.WaitGroup
	runList    []func(context.Context) error
	stopList   []func() error
	reloadList []func(context.Context) error
	exitList   []func(context.Context) error

	mu        sync.Mutex
	stopCh    chan struct{}
	stopped   bool
	health    map[string]bool
	watchers  map[WatchID]HealthWatchFunc
	lastWatch WatchID
}

// OnReload registers a hook to run on SIGHUP.
func (m *MultiServer) OnReload(fn func(context.Context) error) {
	m.reloadList = append(m.reloadList, fn)
}

// OnExit registers a hook to run after every server has stopped.  Exit hooks
// run in reverse order of registration.
func (m *MultiServer) OnExit(fn func(context.Context) error) {
	m.exitList = append(m.exitList, fn)
}

// AddHTTPServer registers an HTTP server to run on the given listener.
func (m *MultiServer) AddHTTPServer(name string, server *http.Server, listen net.Listener) {
	if server == nil {
		panic(errors.New("*http.Server is nil"))
	}
	if listen == nil {
		panic(errors.New("net.Listener is nil"))
	}
	m.SetHealth(name, true)
	m.addRun(name, func(ctx context.Context) error {
		return server.Serve(listen)
	})
	m.stopList = append(m.stopList, server.Close)
}

// AddGRPCServer registers a gRPC server to run on the given listener.
func (m *MultiServer) AddGRPCServer(name string, server *grpc.Server, listen net.Listener) {
	if server == nil {
		panic(errors.New("*grpc.Server is nil"))
	}
	if listen == nil {
		panic(errors.New("net.Listener is nil"))
	}
	m.SetHealth(name, true)
	m.addRun(name, func(ctx context.Context) error {
		return server.Serve(listen)
	})
	m.stopList = append(m.stopList, func() error {
		server.Stop()
		return nil
	})
}

func (m *MultiServer) addRun(name string, fn func(context.Context) error) {
	m.runList = append(m.runList, func(ctx context.Context) error {
		err := fn(ctx)
		m.SetHealth(name, false)
		m.Stop()
		if isRealShutdownError(err) {
			log.Logger.Error().
				Str("subsystem", name).
				Err(err).
				Msg("failed to Serve")
			return err
		}
		return nil
	})
}

// Run starts every registered server and blocks until all of them have
// stopped, then runs the exit hooks.  It returns the combined errors of the
// servers and hooks.
func (m *MultiServer) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.stopCh == nil {
		m.stopCh = make(chan struct{})
	}
	stopCh := m.stopCh
	m.mu.Unlock()

	var errsMu sync.Mutex
	var errs multierror.Error

	sdNotify("READY=1")

	for _, fn := range m.runList {
		fn := fn
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := fn(ctx); err != nil {
				errsMu.Lock()
				errs.Errors = append(errs.Errors, err)
				errsMu.Unlock()
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				m.Stop()
				return

			case <-stopCh:
				return

			case sig := <-sigCh:
				log.Logger.Info().
					Str("sig", sig.String()).
					Msg("got signal")
				switch sig {
				case syscall.SIGINT:
					fallthrough
				case syscall.SIGTERM:
					m.Stop()
				case syscall.SIGHUP:
					_ = m.Reload(ctx)
				}
			}
		}
	}()

	if len(m.runList) == 0 {
		<-stopCh
	}
	m.wg.Wait()

	for index := len(m.exitList); index > 0; index-- {
		if err := m.exitList[index-1](ctx); err != nil {
			errs.Errors = append(errs.Errors, err)
		}
	}

	m.notifyStopped()
	return misc.ErrorOrNil(errs)
}

// Reload runs every reload hook.
func (m *MultiServer) Reload(ctx context.Context) error {
	var errs multierror.Error
	sdNotify("RELOADING=1")
	for _, fn := range m.reloadList {
		misc.Collect(&errs, fn(ctx))
	}
	sdNotify("READY=1")
	return misc.ErrorOrNil(errs)
}

// Stop closes every server immediately.  It is safe to call more than once and
// from any goroutine.
func (m *MultiServer) Stop() {
	m.mu.Lock()
	if m.stopCh == nil {
		m.stopCh = make(chan struct{})
	}
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	sdNotify("STOPPING=1")

	for index := len(m.stopList); index > 0; index-- {
		if err := m.stopList[index-1](); isRealShutdownError(err) {
			log.Logger.Warn().
				Err(err).
				Msg("failed to Close")
		}
	}
}

// SetHealth records the health of the named subsystem.  The empty name is the
// overall health of the process.
func (m *MultiServer) SetHealth(subsystemName string, isHealthy bool) {
	m.mu.Lock()
	if old, found := m.health[subsystemName]; found && old == isHealthy {
		m.mu.Unlock()
		return
	}
	if m.health == nil {
		m.health = make(map[string]bool, 4)
	}
	m.health[subsystemName] = isHealthy
	watchers := m.watchersLocked()
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(subsystemName, isHealthy, false)
	}
}

// GetHealth returns the health of the named subsystem, and whether that
// subsystem is known at all.
func (m *MultiServer) GetHealth(subsystemName string) (isHealthy bool, found bool) {
	m.mu.Lock()
	isHealthy, found = m.health[subsystemName]
	m.mu.Unlock()
	return
}

// WatchHealth registers fn to be told about every future health change.
func (m *MultiServer) WatchHealth(fn HealthWatchFunc) WatchID {
	if fn == nil {
		panic(errors.New("HealthWatchFunc is nil"))
	}
	m.mu.Lock()
	if m.watchers == nil {
		m.watchers = make(map[WatchID]HealthWatchFunc, 4)
	}
	m.lastWatch++
	id := m.lastWatch
	m.watchers[id] = fn
	m.mu.Unlock()
	return id
}

// CancelWatchHealth unregisters a HealthWatchFunc.
func (m *MultiServer) CancelWatchHealth(id WatchID) {
	m.mu.Lock()
	delete(m.watchers, id)
	m.mu.Unlock()
}

// HealthServer returns a grpc.health.v1.Health implementation that reports
// this MultiServer's health registry.
func (m *MultiServer) HealthServer() grpc_health_v1.HealthServer {
	return &healthServer{m: m}
}

func (m *MultiServer) watchersLocked() []HealthWatchFunc {
	ids := make([]WatchID, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]HealthWatchFunc, len(ids))
	for i, id := range ids {
		out[i] = m.watchers[id]
	}
	return out
}

func (m *MultiServer) notifyStopped() {
	m.mu.Lock()
	names := make([]string, 0, len(m.health))
	for name := range m.health {
		m.health[name] = false
		names = append(names, name)
	}
	watchers := m.watchersLocked()
	m.watchers = nil
	m.mu.Unlock()

	sort.Strings(names)
	for _, fn := range watchers {
		for _, name := range names {
			fn(name, false, true)
		}
	}
}

func isRealShutdownError(err error) bool {
	switch {
	case err == nil:
		return false

	case errors.Is(err, fs.ErrClosed):
		return false

	case errors.Is(err, net.ErrClosed):
		return false

	case errors.Is(err, http.ErrServerClosed):
		return false

	case errors.Is(err, grpc.ErrServerStopped):
		return false

	case errors.Is(err, context.Canceled):
		return false

	default:
		return true
	}
}

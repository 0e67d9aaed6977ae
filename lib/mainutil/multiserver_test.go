package mainutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type healthEvent struct {
	name      string
	isHealthy bool
	isStopped bool
}

type eventLog struct {
	mu     sync.Mutex
	events []healthEvent
}

func (l *eventLog) record(name string, isHealthy bool, isStopped bool) {
	l.mu.Lock()
	l.events = append(l.events, healthEvent{name, isHealthy, isStopped})
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []healthEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]healthEvent(nil), l.events...)
}

func TestMultiServer_Health(t *testing.T) {
	var m MultiServer
	var events eventLog

	_, found := m.GetHealth("version")
	assert.False(t, found)

	id := m.WatchHealth(events.record)

	m.SetHealth("version", true)
	m.SetHealth("version", true)
	m.SetHealth("version", false)

	isHealthy, found := m.GetHealth("version")
	assert.True(t, found)
	assert.False(t, isHealthy)

	m.CancelWatchHealth(id)
	m.SetHealth("version", true)

	assert.Equal(t, []healthEvent{
		{"version", true, false},
		{"version", false, false},
	}, events.snapshot())
}

func TestMultiServer_HealthUnchangedIsQuiet(t *testing.T) {
	var m MultiServer
	var events eventLog
	m.WatchHealth(events.record)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.SetHealth("version", true)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []healthEvent{
		{"version", true, false},
	}, events.snapshot())
}

func TestMultiServer_RunHTTP(t *testing.T) {
	var m MultiServer
	var events eventLog
	m.WatchHealth(events.record)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "ok\n")
		}),
	}
	m.AddHTTPServer("http", server, l)

	var reloads int
	m.OnReload(func(ctx context.Context) error {
		reloads++
		return nil
	})

	var exitOrder []string
	m.OnExit(func(ctx context.Context) error {
		exitOrder = append(exitOrder, "first")
		return nil
	})
	m.OnExit(func(ctx context.Context) error {
		exitOrder = append(exitOrder, "second")
		return errors.New("boom")
	})

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- m.Run(context.Background())
	}()

	resp, err := http.Get("http://" + l.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))

	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, 1, reloads)

	m.Stop()
	m.Stop()

	select {
	case err := <-doneCh:
		assert.EqualError(t, err, "boom")
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Equal(t, []string{"second", "first"}, exitOrder)

	isHealthy, found := m.GetHealth("http")
	assert.True(t, found)
	assert.False(t, isHealthy)

	evs := events.snapshot()
	require.NotEmpty(t, evs)
	assert.Equal(t, healthEvent{"http", false, true}, evs[len(evs)-1])
}

func TestMultiServer_RunStopsOnContextCancel(t *testing.T) {
	var m MultiServer

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	m.AddHTTPServer("http", &http.Server{Handler: http.NotFoundHandler()}, l)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- m.Run(ctx)
	}()

	cancel()

	select {
	case err := <-doneCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMultiServer_GRPCHealth(t *testing.T) {
	var m MultiServer
	m.SetHealth("", true)
	m.SetHealth("version", true)

	l := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(server, m.HealthServer())
	m.AddGRPCServer("grpc", server, l)

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- m.Run(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := grpc.DialContext(
		ctx,
		"bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return l.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer cc.Close()

	client := grpc_health_v1.NewHealthClient(cc)

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "version"})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	_, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	ws, err := client.Watch(ctx, &grpc_health_v1.HealthCheckRequest{Service: "version"})
	require.NoError(t, err)

	resp, err = ws.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	m.SetHealth("version", false)

	resp, err = ws.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)

	m.Stop()

	select {
	case err := <-doneCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

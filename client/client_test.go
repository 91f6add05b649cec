package client

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"gbxremote/fault"
	"gbxremote/loadbalance"
	"gbxremote/message"
	"gbxremote/middleware"
	"gbxremote/protocol"
	"gbxremote/registry"
	"gbxremote/server"
)

func startMock(t *testing.T) *server.Server {
	t.Helper()
	svr := server.NewServer(server.Options{})
	svr.Handle("ping", func(_ context.Context, _ []any) (any, error) {
		return "pong", nil
	})
	svr.Handle("GetPlayerInfo", func(_ context.Context, params []any) (any, error) {
		if len(params) == 0 || params[0] != "nadeo" {
			return nil, server.Fault(-1000, "Login unknown.")
		}
		return message.NewStruct("Login", "nadeo", "NickName", "$f00Nadeo"), nil
	})
	if err := svr.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	go svr.Serve()
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func TestPingPong(t *testing.T) {
	svr := startMock(t)
	c := NewClient(Options{})
	host, port := hostPort(t, svr.Addr())

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	got, err := c.Query(context.Background(), "ping")
	if err != nil {
		t.Fatal(err)
	}
	if got != "pong" {
		t.Fatalf("expect pong, got %v", got)
	}
}

func TestQueryFault(t *testing.T) {
	svr := startMock(t)
	c := NewClient(Options{})
	if err := c.ConnectAddr(context.Background(), svr.Addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	_, err := c.Query(context.Background(), "GetPlayerInfo", "ghost")
	if !errors.Is(err, fault.ErrUnknownPlayer) {
		t.Fatalf("err = %v, want unknown player", err)
	}

	info, err := c.Query(context.Background(), "GetPlayerInfo", "nadeo")
	if err != nil {
		t.Fatal(err)
	}
	st, ok := info.(*message.Struct)
	if !ok {
		t.Fatalf("info = %T", info)
	}
	if nick, _ := st.Get("NickName"); nick != "$f00Nadeo" {
		t.Fatalf("NickName = %v", nick)
	}
}

func TestMultiQueryThroughClient(t *testing.T) {
	svr := startMock(t)
	c := NewClient(Options{})
	if err := c.ConnectAddr(context.Background(), svr.Addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	c.AddCall("ping")
	c.AddCall("GetPlayerInfo", "ghost")
	c.AddCall("ping")
	results, err := c.MultiQuery(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[0] != "pong" || results[2] != "pong" {
		t.Fatalf("results = %#v", results)
	}
	if !errors.Is(results[1].(error), fault.ErrUnknownPlayer) {
		t.Fatalf("slot 1 = %v", results[1])
	}
}

func TestMiddlewareChainRuns(t *testing.T) {
	svr := startMock(t)
	var seen atomic.Int32
	count := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			seen.Add(1)
			return next(ctx, call)
		}
	}
	c := NewClient(Options{Middlewares: []middleware.Middleware{count, middleware.MetricsMiddleware()}})
	if err := c.ConnectAddr(context.Background(), svr.Addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	for i := 0; i < 3; i++ {
		if _, err := c.Query(context.Background(), "ping"); err != nil {
			t.Fatal(err)
		}
	}
	if seen.Load() != 3 {
		t.Fatalf("middleware saw %d queries, want 3", seen.Load())
	}
}

func TestMultiQueryRunsMiddleware(t *testing.T) {
	svr := startMock(t)
	var methods []string
	record := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			methods = append(methods, call.MethodName)
			return next(ctx, call)
		}
	}
	c := NewClient(Options{Middlewares: []middleware.Middleware{record}})
	if err := c.ConnectAddr(context.Background(), svr.Addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	if _, err := c.MultiQuery(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(methods) != 0 {
		t.Fatalf("empty batch reached the chain: %v", methods)
	}

	c.AddCall("ping")
	c.AddCall("GetPlayerInfo", "ghost")
	results, err := c.MultiQuery(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0] != "pong" || !errors.Is(results[1].(error), fault.ErrUnknownPlayer) {
		t.Fatalf("results = %#v", results)
	}
	if len(methods) != 1 || methods[0] != protocol.MulticallMethod {
		t.Fatalf("chain saw %v, want one %s", methods, protocol.MulticallMethod)
	}

	methods = nil
	c.AddCall("ping")
	results, err = c.MultiQuery(context.Background())
	if err != nil || len(results) != 1 || results[0] != "pong" {
		t.Fatalf("results = %#v, err = %v", results, err)
	}
	if len(methods) != 1 || methods[0] != "ping" {
		t.Fatalf("chain saw %v, want [ping]", methods)
	}
	if svr.RequestCount() != 2 {
		t.Fatalf("server saw %d frames, want 2", svr.RequestCount())
	}
}

func TestDisconnected(t *testing.T) {
	c := NewClient(Options{})
	if c.IsConnected() {
		t.Fatal("new client must be disconnected")
	}
	if _, err := c.Query(context.Background(), "ping"); !errors.Is(err, protocol.ErrNotConnected) {
		t.Fatalf("Query err = %v", err)
	}
	if err := c.AddCall("ping"); !errors.Is(err, protocol.ErrNotConnected) {
		t.Fatalf("AddCall err = %v", err)
	}
	if _, err := c.MultiQuery(context.Background()); !errors.Is(err, protocol.ErrNotConnected) {
		t.Fatalf("MultiQuery err = %v", err)
	}
	calls, err := c.GetCallbacks(context.Background())
	if !errors.Is(err, protocol.ErrNotConnected) || calls == nil {
		t.Fatalf("GetCallbacks = %v, %v", calls, err)
	}
	if c.IdleTime() != 0 {
		t.Fatal("IdleTime must be zero when disconnected")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
}

func TestSetTimeoutsAppliesToNextConnection(t *testing.T) {
	svr := startMock(t)
	c := NewClient(Options{})
	c.SetTimeouts(50*time.Millisecond, 0)
	svr.Handle("Slow", func(_ context.Context, _ []any) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return true, nil
	})

	if err := c.ConnectAddr(context.Background(), svr.Addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	if _, err := c.Query(context.Background(), "Slow"); !errors.Is(err, protocol.ErrTimedOut) {
		t.Fatalf("err = %v, want timed out", err)
	}
	if c.IsConnected() {
		t.Fatal("timeout must drop the connection")
	}
}

func TestReconnect(t *testing.T) {
	svr := startMock(t)
	c := NewClient(Options{})
	if err := c.ConnectAddr(context.Background(), svr.Addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	svr.CloseClients()
	time.Sleep(20 * time.Millisecond)
	// The drop is noticed on the next I/O.
	c.GetCallbacks(context.Background())
	if c.IsConnected() {
		t.Fatal("expected the connection to be gone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.reconnect(ctx, func(int) time.Duration { return 10 * time.Millisecond }); err != nil {
		t.Fatal(err)
	}
	if got, err := c.Query(context.Background(), "ping"); err != nil || got != "pong" {
		t.Fatalf("after reconnect: %v, %v", got, err)
	}
}

func TestReconnectGivesUpWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c := NewClient(Options{})
	c.addr = addr

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.reconnect(ctx, func(int) time.Duration { return 10 * time.Millisecond }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDelay(t *testing.T) {
	if Delay(0) != time.Second || Delay(3) != 5*time.Second || Delay(100) != 30*time.Second {
		t.Fatalf("unexpected schedule: %v %v %v", Delay(0), Delay(3), Delay(100))
	}
}

func TestConnectDiscovered(t *testing.T) {
	svr := startMock(t)
	reg := registry.NewMemoryRegistry()
	reg.Register(context.Background(), "elite-cup", registry.ServerInstance{Addr: svr.Addr()}, 10)

	c := NewClient(Options{})
	if err := c.ConnectDiscovered(context.Background(), reg, &loadbalance.RoundRobinBalancer{}, "elite-cup"); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()
	if c.Addr() != svr.Addr() {
		t.Fatalf("Addr = %s, want %s", c.Addr(), svr.Addr())
	}

	if err := c.ConnectDiscovered(context.Background(), reg, &loadbalance.RoundRobinBalancer{}, "nobody"); err == nil {
		t.Fatal("expect error when no server is registered")
	}
}

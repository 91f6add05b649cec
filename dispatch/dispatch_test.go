package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gbxremote/message"
	"gbxremote/protocol"
)

// fakeSource hands out queued batches, then fails with err once drained.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]*message.Call
	err     error
}

func (s *fakeSource) GetCallbacks(ctx context.Context) ([]*message.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return []*message.Call{}, s.err
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

type recordSink struct {
	mu     sync.Mutex
	events []*Event
}

func (s *recordSink) Publish(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func call(method string, params ...any) *message.Call {
	return &message.Call{MethodName: method, Params: params}
}

func TestDispatchRoutesByMethod(t *testing.T) {
	src := &fakeSource{batches: [][]*message.Call{{
		call("ManiaPlanet.PlayerConnect", "nadeo", false),
		call("ManiaPlanet.PlayerChat", 0, "nadeo", "gg", false),
		call("ManiaPlanet.PlayerDisconnect", "nadeo", ""),
	}}}
	d := New(src, Options{})

	var connects, all []string
	d.On("ManiaPlanet.PlayerConnect", func(_ context.Context, c *message.Call) error {
		connects = append(connects, c.Params[0].(string))
		return nil
	})
	d.OnAny(func(_ context.Context, c *message.Call) error {
		all = append(all, c.MethodName)
		return errors.New("ignored")
	})

	n, err := d.Poll(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("Poll = %d, %v", n, err)
	}
	if len(connects) != 1 || connects[0] != "nadeo" {
		t.Fatalf("connects = %v", connects)
	}
	if len(all) != 3 || all[1] != "ManiaPlanet.PlayerChat" {
		t.Fatalf("all = %v, want arrival order", all)
	}
}

func TestSinkReceivesEvents(t *testing.T) {
	src := &fakeSource{batches: [][]*message.Call{{call("ManiaPlanet.BeginMap", message.NewStruct("UId", "abc"))}}}
	d := New(src, Options{Server: "127.0.0.1:5000"})
	sink := &recordSink{}
	d.AddSink(sink)

	d.Poll(context.Background())
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Method != "ManiaPlanet.BeginMap" || ev.Server != "127.0.0.1:5000" || ev.Session != d.Session() {
		t.Fatalf("event = %+v", ev)
	}
}

func TestRunStopsOnLostConnection(t *testing.T) {
	src := &fakeSource{
		batches: [][]*message.Call{{call("ManiaPlanet.ServerStop")}},
		err:     protocol.ErrNotConnected,
	}
	d := New(src, Options{Interval: time.Millisecond})
	var stops int
	d.On("ManiaPlanet.ServerStop", func(context.Context, *message.Call) error {
		stops++
		return nil
	})

	err := d.Run(context.Background())
	if !errors.Is(err, protocol.ErrNotConnected) {
		t.Fatalf("Run = %v, want not connected", err)
	}
	if stops != 1 {
		t.Fatalf("stops = %d, want 1", stops)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	d := New(&fakeSource{}, Options{Interval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v", err)
	}
}

func TestRedisSink(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	sink, err := NewRedisSink(ctx, mr.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	defer sink.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	sub := rdb.Subscribe(ctx, sink.Channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	d := New(&fakeSource{batches: [][]*message.Call{{
		call("ManiaPlanet.PlayerInfoChanged", message.NewStruct("Login", "nadeo", "TeamId", 1)),
	}}}, Options{})
	d.AddSink(sink)
	d.Poll(ctx)

	select {
	case msg := <-sub.Channel():
		var ev struct {
			Method string `json:"method"`
			Params []struct {
				Login  string `json:"Login"`
				TeamID int    `json:"TeamId"`
			} `json:"params"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("payload %q: %v", msg.Payload, err)
		}
		if ev.Method != "ManiaPlanet.PlayerInfoChanged" || len(ev.Params) != 1 || ev.Params[0].Login != "nadeo" || ev.Params[0].TeamID != 1 {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url    string
		addrs  int
		master string
		db     int
	}{
		{"localhost:6379", 1, "", 0},
		{"redis://:pass@localhost:6379/1", 1, "", 1},
		{"redis://host1:6379,host2:6379/0", 2, "", 0},
		{"redis-sentinel://s1:26379,s2:26379/mymaster?db=2", 2, "mymaster", 2},
	}
	for _, tt := range tests {
		opts, err := parseRedisURL(tt.url)
		if err != nil {
			t.Fatalf("parseRedisURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs || opts.MasterName != tt.master || opts.DB != tt.db {
			t.Fatalf("parseRedisURL(%q) = %+v", tt.url, opts)
		}
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) handle(line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, string(line))
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func testOptions() Options {
	return Options{
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		Logger:     log.New(io.Discard),
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", `{"type":"haptic"}`, []string{`{"type":"haptic"}`}},
		{"multiple", "a\nb\n", []string{"a", "b"}},
		{"blank lines skipped", "\n\n a \r\n\n", []string{"a"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c collector
			SplitLines([]byte(tt.in), c.handle)
			got := c.snapshot()
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("SplitLines(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadLines(t *testing.T) {
	var c collector
	in := "{\"type\":\"telemetry\"}\n\n   \n{\"type\":\"haptic\",\"key\":\"x\"}"
	if err := ReadLines(context.Background(), strings.NewReader(in), c.handle); err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	got := c.snapshot()
	if len(got) != 2 || got[1] != `{"type":"haptic","key":"x"}` {
		t.Errorf("Unexpected lines: %q", got)
	}
}

func TestReadLinesTooLong(t *testing.T) {
	in := strings.Repeat("x", MaxLineBytes+10)
	err := ReadLines(context.Background(), strings.NewReader(in), func([]byte) {})
	if err == nil {
		t.Error("Expected an error for an oversized line")
	}
}

func TestRunUnsupportedScheme(t *testing.T) {
	err := Run(context.Background(), "udp://127.0.0.1:1", func([]byte) {}, testOptions())
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestRunWebsocketReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("{\"n\":1}\n{\"n\":2}\n"))
		conn.WriteMessage(websocket.BinaryMessage, []byte("ignored"))
	}))
	defer srv.Close()

	var c collector
	var mu sync.Mutex
	connects := 0
	opts := testOptions()
	opts.OnConnect = func(string) {
		mu.Lock()
		connects++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), c.handle, opts)
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := connects
		mu.Unlock()
		if n >= 2 && len(c.snapshot()) >= 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected reconnects, got %d connects and lines %q", n, c.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	got := c.snapshot()
	if got[0] != `{"n":1}` || got[1] != `{"n":2}` {
		t.Errorf("Unexpected lines: %q", got)
	}
	for _, l := range got {
		if l == "ignored" {
			t.Error("Binary messages must be ignored")
		}
	}
}

func TestRunTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		io.WriteString(conn, "{\"type\":\"event\"}\n\n{\"type\":\"haptic\"}\n")
		// Keep the connection open until the client goes away.
		io.Copy(io.Discard, conn)
		conn.Close()
	}()

	var c collector
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "tcp://"+ln.Addr().String(), c.handle, testOptions())
	}()

	deadline := time.After(2 * time.Second)
	for len(c.snapshot()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("Expected two lines, got %q", c.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRetriesUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := Run(ctx, "ws://"+addr+"/", func([]byte) {}, testOptions()); err != nil {
		t.Errorf("Expected nil on cancellation, got %v", err)
	}
	if time.Since(start) < 90*time.Millisecond {
		t.Error("Run gave up before the context expired")
	}
}

func TestBackoff(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name      string
		connected []bool
		want      []time.Duration
	}{
		{"unreachable", []bool{false, false, false, false, false, false}, []time.Duration{500 * ms, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}},
		{"dropped session", []bool{false, false, true, false}, []time.Duration{500 * ms, time.Second, 500 * ms, time.Second}},
		{"repeated drops", []bool{true, true, true}, []time.Duration{500 * ms, 500 * ms, 500 * ms}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackoff(DefaultMinBackoff, DefaultMaxBackoff)
			for i, connected := range tt.connected {
				if connected {
					b.reset()
				}
				if got := b.next(); got != tt.want[i] {
					t.Errorf("wait %d = %v, want %v", i, got, tt.want[i])
				}
			}
		})
	}
}

// Package transport delivers inbound JSON lines from the game bridge.
//
// A websocket (ws, wss) or plain TCP (tcp) endpoint is dialed and read until it
// fails, then redialed with exponential backoff until the context is canceled.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Backoff bounds between reconnect attempts.
const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 5 * time.Second
)

// MaxLineBytes is the longest accepted line.
const MaxLineBytes = 1 << 20

// ErrUnsupportedScheme is returned by Run for URLs it cannot dial.
var ErrUnsupportedScheme = errors.New("transport: unsupported url scheme")

// Handler receives one non-empty line. The slice is only valid during the call.
type Handler func(line []byte)

// Options configures Run.
type Options struct {
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	DialTimeout time.Duration
	Logger      *log.Logger

	// OnConnect is called after every successful dial.
	OnConnect func(url string)
}

func (o *Options) setDefaults() {
	if o.MinBackoff <= 0 {
		o.MinBackoff = DefaultMinBackoff
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = max(DefaultMaxBackoff, o.MinBackoff)
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Run connects to rawURL and feeds every received line to handler,
// reconnecting until ctx is canceled. It returns nil on cancellation.
func Run(ctx context.Context, rawURL string, handler Handler, opts Options) error {
	opts.setDefaults()

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	var session func(context.Context) error
	switch u.Scheme {
	case "ws", "wss":
		session = func(ctx context.Context) error { return runWebsocket(ctx, rawURL, handler, opts) }
	case "tcp":
		session = func(ctx context.Context) error { return runTCP(ctx, u.Host, handler, opts) }
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	b := newBackoff(opts.MinBackoff, opts.MaxBackoff)
	for {
		connected, err := sessionResult(session(ctx))
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.reset()
		}
		wait := b.next()
		opts.Logger.Warn("connection lost", "url", rawURL, "err", err, "retry", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// backoff doubles the reconnect wait after every attempt, up to max. A
// session that connected starts over from min.
type backoff struct {
	cur, min, max time.Duration
}

func newBackoff(minWait, maxWait time.Duration) *backoff {
	return &backoff{cur: minWait, min: minWait, max: maxWait}
}

func (b *backoff) reset() {
	b.cur = b.min
}

func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	return d
}

// errDisconnected wraps read errors that follow a successful dial.
type errDisconnected struct{ err error }

func (e errDisconnected) Error() string { return e.err.Error() }
func (e errDisconnected) Unwrap() error { return e.err }

func sessionResult(err error) (connected bool, cause error) {
	var d errDisconnected
	if errors.As(err, &d) {
		return true, d.err
	}
	return false, err
}

func runWebsocket(ctx context.Context, rawURL string, handler Handler, opts Options) error {
	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(MaxLineBytes)

	opts.Logger.Info("connected", "url", rawURL)
	if opts.OnConnect != nil {
		opts.OnConnect(rawURL)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return errDisconnected{fmt.Errorf("read websocket: %w", err)}
		}
		if kind != websocket.TextMessage {
			continue
		}
		SplitLines(msg, handler)
	}
}

func runTCP(ctx context.Context, addr string, handler Handler, opts Options) error {
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp: %w", err)
	}
	defer conn.Close()

	opts.Logger.Info("connected", "addr", addr)
	if opts.OnConnect != nil {
		opts.OnConnect("tcp://" + addr)
	}

	err = ReadLines(ctx, conn, handler)
	if err == nil {
		err = io.EOF
	}
	return errDisconnected{fmt.Errorf("read tcp: %w", err)}
}

// SplitLines calls handler for each non-blank newline-separated line in msg.
func SplitLines(msg []byte, handler Handler) {
	for len(msg) > 0 {
		line, rest, _ := bytes.Cut(msg, []byte{'\n'})
		msg = rest
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			handler(line)
		}
	}
}

// ReadLines feeds each non-blank line of r to handler until EOF, a read
// error or ctx cancellation. EOF returns nil.
func ReadLines(ctx context.Context, r io.Reader, handler Handler) error {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineBytes)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		handler(line)
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return ctx.Err()
}

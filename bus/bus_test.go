package bus

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/markvandendool/roxy-sub003/ring"
	"github.com/sirupsen/logrus"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Name = "/roxy_test"
	cfg.Dir = t.TempDir()
	cfg.Size = arena.HeaderSize + 65536
	cfg.ReplySize = arena.HeaderSize + 8192
	cfg.ReadTimeout = 5 * time.Millisecond

	return cfg
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(new(bytes.Buffer))
	return log
}

func newTestBus(t *testing.T, cfg Config) (host, client *Client) {
	t.Helper()

	host, err := Host(cfg, WithLogger(quietLogger()))

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { host.Close() })

	if client, err = Connect(cfg, WithLogger(quietLogger())); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { client.Close() })
	return
}

// serve runs host.Serve until the test ends.
func serve(t *testing.T, host *Client, h Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- host.Serve(ctx, h)
	}()

	t.Cleanup(func() {
		cancel()

		if err := <-done; err != nil {
			t.Error(err)
		}
	})
}

func mustRead(t *testing.T, c *Client) frame.Frame {
	t.Helper()

	f, ok, err := c.Read(time.Second)

	if err != nil {
		t.Fatal(err)
	}

	if !ok {
		t.Fatal("read timed out")
	}

	return f
}

func TestHostConnect(t *testing.T) {
	host, client := newTestBus(t, testConfig(t))

	if err := client.Write(frame.TypeCommand, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	f := mustRead(t, host)

	if f.Type != frame.TypeCommand || string(f.Payload) != "hello" {
		t.Fatalf("host got %s %q", f.Type, f.Payload)
	}

	if err := host.Write(frame.TypeResponse, []byte("hi")); err != nil {
		t.Fatal(err)
	}

	f = mustRead(t, client)

	if f.Type != frame.TypeResponse || string(f.Payload) != "hi" {
		t.Fatalf("client got %s %q", f.Type, f.Payload)
	}
}

func TestPing(t *testing.T) {
	host, client := newTestBus(t, testConfig(t))
	got := make(chan frame.Frame, 1)

	serve(t, host, HandlerFunc(func(ctx context.Context, f frame.Frame) error {
		got <- f
		return nil
	}))

	for i := 0; i < 3; i++ {
		rtt, err := client.Ping(time.Second)

		if err != nil {
			t.Fatal(err)
		}

		if rtt <= 0 || rtt > time.Second {
			t.Errorf("round trip %s", rtt)
		}
	}

	if err := client.Write(frame.TypeEvent, []byte("pitch:69")); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-got:
		if f.Type != frame.TypeEvent || string(f.Payload) != "pitch:69" {
			t.Errorf("handler got %s %q", f.Type, f.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never called")
	}
}

func TestPingTimeout(t *testing.T) {
	_, client := newTestBus(t, testConfig(t))

	start := time.Now()
	_, err := client.Ping(20 * time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNoPong) {
		t.Fatalf("expected ErrNoPong, got %v", err)
	}

	if elapsed < 20*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("ping gave up after %s", elapsed)
	}
}

func TestPingKeepsOtherFrames(t *testing.T) {
	host, client := newTestBus(t, testConfig(t))

	for _, msg := range []string{"first", "second"} {
		if err := host.Write(frame.TypeState, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}

	serve(t, host, nil)

	if _, err := client.Ping(time.Second); err != nil {
		t.Fatal(err)
	}

	if err := host.Write(frame.TypeState, []byte("third")); err != nil {
		t.Fatal(err)
	}

	for _, msg := range []string{"first", "second", "third"} {
		if f := mustRead(t, client); string(f.Payload) != msg {
			t.Fatalf("expected %q, got %q", msg, f.Payload)
		}
	}
}

func TestWriteOnly(t *testing.T) {
	cfg := testConfig(t)
	host, _ := newTestBus(t, cfg)

	cfg.WriteOnly = true
	client, err := Connect(cfg, WithLogger(quietLogger()))

	if err != nil {
		t.Fatal(err)
	}

	defer client.Close()

	if err = client.Write(frame.TypeCommand, []byte("x")); err != nil {
		t.Fatal(err)
	}

	if f := mustRead(t, host); string(f.Payload) != "x" {
		t.Fatalf("got %q", f.Payload)
	}

	if _, _, err = client.Read(time.Millisecond); !errors.Is(err, ErrWriteOnly) {
		t.Errorf("expected ErrWriteOnly from Read, got %v", err)
	}

	if _, err = client.Ping(time.Millisecond); !errors.Is(err, ErrWriteOnly) {
		t.Errorf("expected ErrWriteOnly from Ping, got %v", err)
	}

	if err = client.Serve(context.Background(), nil); !errors.Is(err, ErrWriteOnly) {
		t.Errorf("expected ErrWriteOnly from Serve, got %v", err)
	}
}

func TestSecondReplyReader(t *testing.T) {
	cfg := testConfig(t)
	newTestBus(t, cfg)

	if _, err := Connect(cfg, WithLogger(quietLogger())); !errors.Is(err, ring.ErrReaderBusy) {
		t.Fatalf("expected ErrReaderBusy, got %v", err)
	}
}

func TestHostTwice(t *testing.T) {
	cfg := testConfig(t)
	newTestBus(t, cfg)

	if _, err := Host(cfg, WithLogger(quietLogger())); !errors.Is(err, arena.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestHostCleansUpOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReplySize = 10

	if _, err := Host(cfg, WithLogger(quietLogger())); !errors.Is(err, arena.ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Dir, "roxy_test")); !os.IsNotExist(err) {
		t.Errorf("inbox left behind: %v", err)
	}
}

func TestConnectMissing(t *testing.T) {
	if _, err := Connect(testConfig(t)); !errors.Is(err, arena.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseDestroys(t *testing.T) {
	cfg := testConfig(t)

	host, err := Host(cfg, WithLogger(quietLogger()))

	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"roxy_test", "roxy_test.reply"} {
		if _, err = os.Stat(filepath.Join(cfg.Dir, name)); err != nil {
			t.Fatal(err)
		}
	}

	if err = host.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"roxy_test", "roxy_test.reply"} {
		if _, err = os.Stat(filepath.Join(cfg.Dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still exists: %v", name, err)
		}
	}

	if err = host.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	if err = host.Write(frame.TypeEvent, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	if _, err = host.Ping(time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Ping, got %v", err)
	}

	if _, _, err = host.Read(time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Read, got %v", err)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Config{Name: "/roxy_test"}

	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if cfg.StallAfter != ring.DefaultStallAfter {
		t.Errorf("expected stall after %s, got %s", ring.DefaultStallAfter, cfg.StallAfter)
	}

	if cfg.ReadTimeout != DefaultReadTimeout || cfg.PingTimeout != DefaultPingTimeout {
		t.Errorf("timeouts not defaulted: %+v", cfg)
	}

	if cfg.Size != arena.DefaultSize || cfg.ReplySize != DefaultReplySize {
		t.Errorf("sizes not defaulted: %+v", cfg)
	}

	if cfg.ReplyRing() != "/roxy_test.reply" {
		t.Errorf("unexpected reply ring %q", cfg.ReplyRing())
	}

	off := Config{Name: "/roxy_test", StallAfter: -1}

	if err := off.Validate(); err != nil || off.StallAfter != -1 {
		t.Errorf("negative stall threshold must be kept: %s, %v", off.StallAfter, err)
	}

	same := Config{Name: "/roxy_test", ReplyName: "/roxy_test"}

	if err := same.Validate(); err == nil {
		t.Error("expected an error when both rings share a name")
	}

	if err := (&Config{}).Validate(); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestWriteOrWait(t *testing.T) {
	a, err := arena.NewAnonymous(arena.HeaderSize + 4096)

	if err != nil {
		t.Fatal(err)
	}

	defer a.Close()

	r := ring.New(a, ring.WithLogger(quietLogger()))
	rd, err := r.NewReader()

	if err != nil {
		t.Fatal(err)
	}

	c := New(r, rd)
	payload := make([]byte, 240)
	n := 0

	for {
		if err = c.Write(frame.TypeEvent, payload); err != nil {
			break
		}

		n++
	}

	if !errors.Is(err, ring.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	start := time.Now()

	if err = c.WriteOrWait(frame.TypeEvent, payload, 10*time.Millisecond); !errors.Is(err, ring.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	if time.Since(start) < 10*time.Millisecond {
		t.Error("gave up before the timeout")
	}

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)

		if _, ok, err := c.Read(time.Second); !ok || err != nil {
			t.Errorf("drain: ok %v, err %v", ok, err)
		}
	}()

	if err = c.WriteOrWait(frame.TypeEvent, payload, time.Second); err != nil {
		t.Fatal(err)
	}

	wg.Wait()

	if s := r.Stats(); s.Backlog != uint64(n) {
		t.Errorf("expected %d frames in the ring, got %d", n, s.Backlog)
	}
}

type note struct {
	Pitch int    `json:"pitch"`
	Name  string `json:"name"`
}

func TestTyped(t *testing.T) {
	host, client := newTestBus(t, testConfig(t))

	sent := time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC)

	if err := client.WriteTyped(frame.TypeState, sent); err != nil {
		t.Fatal(err)
	}

	var got time.Time
	typ, ok, err := host.ReadTyped(time.Second, &got)

	if err != nil || !ok {
		t.Fatalf("ok %v, err %v", ok, err)
	}

	if typ != frame.TypeState || !got.Equal(sent) {
		t.Errorf("got %s %s", typ, got)
	}

	if err = client.WriteJSON(frame.TypeEvent, note{Pitch: 69, Name: "A4"}); err != nil {
		t.Fatal(err)
	}

	var n note

	if typ, ok, err = host.ReadJSON(time.Second, &n); err != nil || !ok {
		t.Fatalf("ok %v, err %v", ok, err)
	}

	if typ != frame.TypeEvent || n != (note{Pitch: 69, Name: "A4"}) {
		t.Errorf("got %s %+v", typ, n)
	}

	if err = client.Write(frame.TypeEvent, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	if _, ok, err = host.ReadJSON(time.Second, &n); !ok || err == nil {
		t.Errorf("expected a consumed frame and an error, got ok %v, err %v", ok, err)
	}

	if _, ok, err = host.ReadJSON(time.Millisecond, &n); ok || err != nil {
		t.Errorf("expected an empty ring, got ok %v, err %v", ok, err)
	}
}

func TestServeStopsOnCorruption(t *testing.T) {
	host, client := newTestBus(t, testConfig(t))

	if err := client.Write(frame.TypeCommand, []byte("doomed")); err != nil {
		t.Fatal(err)
	}

	// Overwrite the published word with something that is not a frame.
	data := host.Reader().Ring().Arena().Ring()
	copy(data[:4], []byte{0xEF, 0xBE, 0xAD, 0xDE})

	err := host.Serve(context.Background(), nil)

	if !errors.Is(err, frame.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

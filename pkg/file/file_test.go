package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/vigil"
	vigiltest "github.com/zoobzio/vigil/testing"
)

type testConfig struct {
	Port int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Host string `json:"host" yaml:"host" validate:"required"`
}

// writeAtomic replaces path in a single rename so readers never see a
// partially written file.
func writeAtomic(t *testing.T, path string, data string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("failed to rename file: %v", err)
	}
}

func TestNew(t *testing.T) {
	p := New[testConfig]("/path/to/config.json")
	if p.Path() != "/path/to/config.json" {
		t.Errorf("expected path '/path/to/config.json', got %q", p.Path())
	}
	if _, ok := p.codec.(JSONCodec); !ok {
		t.Errorf("expected JSONCodec for .json, got %T", p.codec)
	}
	if p.debounce != DefaultDebounce {
		t.Errorf("expected default debounce, got %v", p.debounce)
	}

	if _, ok := New[testConfig]("config.yml").codec.(YAMLCodec); !ok {
		t.Error("expected YAMLCodec for .yml")
	}
	if _, ok := New[string]("notes.txt", WithCodec(RawCodec{})).codec.(RawCodec); !ok {
		t.Error("expected WithCodec to override the extension")
	}
}

func TestProducer_InitialContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeAtomic(t, path, "port: 8080\nhost: localhost\n")

	p := New[testConfig](path)
	defer p.Close()

	cfg, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if cfg.Port != 8080 || cfg.Host != "localhost" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestProducer_MissingFile(t *testing.T) {
	p := New[testConfig](filepath.Join(t.TempDir(), "missing.json"))

	if _, err := p.Next(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after failure, got %v", err)
	}
}

func TestProducer_MissingDirectory(t *testing.T) {
	p := New[testConfig]("/nonexistent/path/config.json")
	defer p.Close()

	if _, err := p.Next(context.Background()); err == nil {
		t.Error("expected error for nonexistent directory")
	}
}

func TestProducer_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	p := New[testConfig](path)
	if _, err := p.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after Close, got %v", err)
	}
}

func TestProducer_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	p := New[testConfig](path)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := p.Next(ctx); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Next(ctx)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestProducer_MonitorReceivesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	rec := vigiltest.NewRecorder[testConfig]()
	m := vigil.NewFallible(context.Background(), New[testConfig](path, WithDebounce(0)), rec.Callback)
	defer m.Close()

	if !vigiltest.WaitFor(t, time.Second, func() bool { return rec.Len() == 1 }) {
		t.Fatal("expected initial config")
	}

	writeAtomic(t, path, `{"port": 2, "host": "b"}`)

	if !vigiltest.WaitFor(t, 2*time.Second, func() bool { return rec.Len() >= 2 }) {
		t.Fatal("expected updated config")
	}
	got := rec.Values()
	if got[len(got)-1].Port != 2 {
		t.Errorf("expected port 2, got %d", got[len(got)-1].Port)
	}
	if m.State() != vigil.StateRunning {
		t.Errorf("expected monitor running, got %s", m.State())
	}
}

func TestProducer_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	rec := vigiltest.NewRecorder[testConfig]()
	m := vigil.NewFallible(context.Background(), New[testConfig](path, WithDebounce(0)), rec.Callback)
	defer m.Close()

	if !vigiltest.WaitFor(t, time.Second, func() bool { return rec.Len() == 1 }) {
		t.Fatal("expected initial config")
	}

	writeAtomic(t, filepath.Join(dir, "other.json"), `{"port": 9, "host": "z"}`)
	time.Sleep(100 * time.Millisecond)

	if rec.Len() != 1 {
		t.Errorf("expected writes to other files to be ignored, got %d values", rec.Len())
	}
}

func TestProducer_DecodeFailureFailsMonitor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	rec := vigiltest.NewRecorder[testConfig]()
	p := New[testConfig](path, WithDebounce(0))
	m := vigil.NewFallible(context.Background(), p, rec.Callback)
	defer m.Close()

	if !vigiltest.WaitFor(t, time.Second, func() bool { return rec.Len() == 1 }) {
		t.Fatal("expected initial config")
	}

	writeAtomic(t, path, `{not json`)

	vigiltest.RequireStateWithin(t, m, vigil.StateFailed, 2*time.Second)
	if m.Err() == nil {
		t.Error("expected decode error")
	}
	if rec.Len() != 1 {
		t.Errorf("expected no delivery of invalid contents, got %d values", rec.Len())
	}
	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected producer closed after failure, got %v", err)
	}
}

func TestProducer_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeAtomic(t, path, "port: 0\nhost: localhost\n")

	m := vigil.NewFallible(context.Background(), New[testConfig](path), func(context.Context, testConfig) {
		t.Error("callback must not run for invalid config")
	})
	defer m.Close()

	vigiltest.RequireStateWithin(t, m, vigil.StateFailed, time.Second)
	if m.Err() == nil {
		t.Error("expected validation error")
	}
}

func TestProducer_WithoutValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeAtomic(t, path, "port: 0\n")

	p := New[testConfig](path, WithoutValidation())
	defer p.Close()

	cfg, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if cfg.Port != 0 {
		t.Errorf("expected port 0, got %d", cfg.Port)
	}
}

func TestProducer_CancelClosesWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	p := New[testConfig](path)
	m := vigil.NewFallible(context.Background(), p, func(context.Context, testConfig) {})

	if !vigiltest.WaitFor(t, time.Second, func() bool { return m.Delivered() == 1 }) {
		t.Fatal("expected initial delivery")
	}

	m.Cancel()
	vigiltest.RequireStateWithin(t, m, vigil.StateCancelled, time.Second)

	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected producer closed after cancellation, got %v", err)
	}
}

func TestProducer_Debounce(t *testing.T) {
	clock := clockz.NewFakeClock()
	path := filepath.Join(t.TempDir(), "config.json")
	writeAtomic(t, path, `{"port": 1, "host": "a"}`)

	rec := vigiltest.NewRecorder[testConfig]()
	m := vigil.NewFallible(context.Background(),
		New[testConfig](path, WithDebounce(time.Second), WithClock(clock)),
		rec.Callback,
	)
	defer m.Close()

	if !vigiltest.WaitFor(t, time.Second, func() bool { return rec.Len() == 1 }) {
		t.Fatal("expected initial config")
	}

	writeAtomic(t, path, `{"port": 2, "host": "a"}`)
	writeAtomic(t, path, `{"port": 3, "host": "a"}`)
	time.Sleep(50 * time.Millisecond)

	if rec.Len() != 1 {
		t.Errorf("expected still 1 value while debouncing, got %d", rec.Len())
	}

	ok := vigiltest.WaitFor(t, 2*time.Second, func() bool {
		clock.Advance(2 * time.Second)
		clock.BlockUntilReady()
		return rec.Len() >= 2
	})
	if !ok {
		t.Fatal("expected debounced update")
	}
	if got := rec.Values(); got[1].Port != 3 {
		t.Errorf("expected latest port 3, got %d", got[1].Port)
	}
}

func TestRawCodec(t *testing.T) {
	var s string
	if err := (RawCodec{}).Unmarshal([]byte("hello"), &s); err != nil || s != "hello" {
		t.Errorf("expected hello, got %q (%v)", s, err)
	}

	src := []byte("bytes")
	var b []byte
	if err := (RawCodec{}).Unmarshal(src, &b); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	src[0] = 'X'
	if string(b) != "bytes" {
		t.Errorf("expected copy of input, got %q", b)
	}

	var n int
	if err := (RawCodec{}).Unmarshal([]byte("1"), &n); err == nil {
		t.Error("expected error for unsupported target")
	}
}

func TestCodec_ContentTypes(t *testing.T) {
	cases := map[Codec]string{
		JSONCodec{}: "application/json",
		YAMLCodec{}: "application/x-yaml",
		RawCodec{}:  "application/octet-stream",
	}
	for c, want := range cases {
		if got := c.ContentType(); got != want {
			t.Errorf("%T: expected %q, got %q", c, want, got)
		}
	}
}

func TestProducer_RawStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motd.txt")
	writeAtomic(t, path, "welcome")

	p := New[string](path, WithCodec(RawCodec{}))
	defer p.Close()

	s, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if s != "welcome" {
		t.Errorf("expected welcome, got %q", s)
	}
}

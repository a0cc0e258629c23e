package oled

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
)

func startController(t *testing.T, p *panel, queueSize int) (*Controller, context.CancelFunc, <-chan error) {
	t.Helper()
	dev, _, _ := newTestDevice(p)
	c := NewController(dev, queueSize, nil)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return c, cancel, errc
}

func renderedText(s string) []byte {
	dev := NewDevice(bus.New(io.Discard, nopPin{}), Config{})
	dev.DrawText(s)
	return append([]byte(nil), dev.Buffer()...)
}

type nopPin struct{}

func (nopPin) Set(bool) error { return nil }

func TestControllerAppliesInOrder(t *testing.T) {
	p := newPanel()
	c, _, _ := startController(t, p, 4)
	ctx := context.Background()

	for _, cmd := range []Command{Text("a"), Clear(), Text("b")} {
		if err := c.Submit(ctx, cmd); err != nil {
			t.Fatalf("Submit(%v): %v", cmd, err)
		}
	}

	var frames [][]byte
	for i := 0; i < 3; i++ {
		f, ok := p.nextFrame(2 * time.Second)
		if !ok {
			t.Fatalf("got %d frames, want 3", len(frames))
		}
		frames = append(frames, f)
	}

	if !bytes.Equal(frames[0], renderedText("a")) {
		t.Fatal("frame 1 does not encode \"a\"")
	}
	if !bytes.Equal(frames[1], make([]byte, Width*Pages)) {
		t.Fatal("frame 2 is not the cleared frame")
	}
	if !bytes.Equal(frames[2], renderedText("b")) {
		t.Fatal("frame 3 does not encode \"b\"")
	}
	if bytes.Equal(frames[0], frames[2]) {
		t.Fatal("frames for \"a\" and \"b\" are identical")
	}
}

func TestControllerNeverReadyAfterFailedInit(t *testing.T) {
	p := newPanel()
	p.failAt = 3
	dev, _, _ := newTestDevice(p)
	c := NewController(dev, 1, nil)

	if err := c.Initialize(); err == nil {
		t.Fatal("Initialize() err = nil, want short write")
	}
	if c.Ready() {
		t.Fatal("Ready() = true after failed init")
	}
	writes := p.writeCount()

	if err := c.Submit(context.Background(), Text("hello")); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Submit() err = %v, want ErrNotReady", err)
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Run() err = %v, want ErrNotReady", err)
	}
	if got := p.writeCount(); got != writes {
		t.Fatalf("writes after failed init = %d, want %d", got, writes)
	}
}

func TestControllerSubmitBackpressure(t *testing.T) {
	dev, _, _ := newTestDevice(newPanel())
	c := NewController(dev, 1, nil)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// No worker is running, so the second submit must wait for room.
	if err := c.Submit(context.Background(), Clear()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Submit(ctx, Clear()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit() err = %v, want context.DeadlineExceeded", err)
	}
}

func TestControllerContinuesAfterRenderFailure(t *testing.T) {
	p := newPanel()
	c, _, _ := startController(t, p, 4)

	// Fail the first write of the next render.
	p.mu.Lock()
	p.failAt = p.writes + 1
	p.mu.Unlock()

	ctx := context.Background()
	if err := c.Submit(ctx, Text("lost")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := c.Submit(ctx, Clear()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	f, ok := p.nextFrame(2 * time.Second)
	if !ok {
		t.Fatal("worker stopped after a render failure")
	}
	if !bytes.Equal(f, make([]byte, Width*Pages)) {
		t.Fatal("expected the cleared frame after the failed render")
	}
}

func TestControllerSubmitAfterStop(t *testing.T) {
	c, cancel, errc := startController(t, newPanel(), 1)
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := c.Submit(context.Background(), Clear()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit() err = %v, want ErrClosed", err)
	}
}

func TestCommandString(t *testing.T) {
	if got := Clear().String(); got != "clear" {
		t.Fatalf("Clear().String() = %q", got)
	}
	if got := Text("hi").String(); got != `text("hi")` {
		t.Fatalf("Text().String() = %q", got)
	}
}

package process

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
	"github.com/harveysanders/waveshareoled/waveshareoled/oled"
)

type events struct {
	got chan input.Event
}

func (e *events) Publish(ev input.Event) {
	e.got <- ev
}

func startCat(t *testing.T) (*Backend, *events) {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	ev := &events{got: make(chan input.Event, 8)}
	b, err := New("cat", ev, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return b, ev
}

func TestBackendEchoedEventsArePublished(t *testing.T) {
	b, ev := startCat(t)
	ctx := context.Background()

	// cat echoes each line back; only canonical event names are published.
	for _, cmd := range []oled.Command{oled.Text("hello"), oled.Clear(), oled.Text("joystick_up"), oled.Text("button3")} {
		if err := b.Submit(ctx, cmd); err != nil {
			t.Fatalf("Submit(%v): %v", cmd, err)
		}
	}
	for _, want := range []input.Event{input.JoystickUp, input.Button3Press} {
		select {
		case got := <-ev.got:
			if got != want {
				t.Fatalf("published %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("never published %v", want)
		}
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Wait(); err != nil {
		t.Fatalf("Wait() after Close = %v, want nil", err)
	}
	if err := b.Submit(ctx, oled.Clear()); !errors.Is(err, ErrExited) {
		t.Fatalf("Submit() after exit err = %v, want ErrExited", err)
	}
}

func TestBackendMultilineMessageIsOneLine(t *testing.T) {
	b, ev := startCat(t)
	if err := b.Submit(context.Background(), oled.Text("button1\nbutton2")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := b.Submit(context.Background(), oled.Text("button2")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case got := <-ev.got:
		if got != input.Button2Press {
			t.Fatalf("published %v, want only the standalone button2", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
	b.Close()
	b.Wait()
}

func TestBackendUnexpectedExit(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	b, err := New("true", &events{got: make(chan input.Event, 1)}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Wait(); !errors.Is(err, ErrExited) {
		t.Fatalf("Wait() err = %v, want ErrExited", err)
	}
}

func TestNewParsesCommand(t *testing.T) {
	b, err := New(`python3 "/usr/local/lib/oled display.py" --font 13`, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"python3", "/usr/local/lib/oled display.py", "--font", "13"}
	if len(b.argv) != len(want) {
		t.Fatalf("argv = %q, want %q", b.argv, want)
	}
	for i := range want {
		if b.argv[i] != want[i] {
			t.Fatalf("argv = %q, want %q", b.argv, want)
		}
	}
	if _, err := New("   ", nil, nil); err == nil {
		t.Fatal("New(blank) succeeded")
	}
	if err := b.Submit(context.Background(), oled.Clear()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Submit() before Start err = %v, want ErrNotStarted", err)
	}
}

package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
	"github.com/harveysanders/waveshareoled/waveshareoled/input"
)

func TestTerminalKeysBecomeLines(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	term := NewTerminal(screen, NewPanel(), input.DefaultLines(), nil)

	term.press(tcell.NewEventKey(tcell.KeyRune, '1', tcell.ModNone))
	term.press(tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	term.press(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	term.press(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	want := []int{21, 6, 13}
	for i, w := range want {
		line, err := term.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait #%d: %v", i, err)
		}
		if line != w {
			t.Fatalf("line #%d = %d, want %d", i, line, w)
		}
	}
}

func TestTerminalDrawsPanel(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(Width, Height/2+2)

	p := NewPanel()
	ch := bus.New(p, p)
	for _, cmd := range []byte{0xAF, 0xB0, 0x02, 0x10} {
		if err := ch.Command(cmd); err != nil {
			t.Fatalf("Command: %v", err)
		}
	}
	// Column 0: rows 0 and 1 lit. Column 1: row 0 only. Column 2: row 1 only.
	if err := ch.Data([]byte{0x03, 0x01, 0x02}); err != nil {
		t.Fatalf("Data: %v", err)
	}

	term := NewTerminal(screen, p, input.DefaultLines(), nil)
	term.draw()

	for x, want := range []rune{'█', '▀', '▄', ' '} {
		got, _, _, _ := screen.GetContent(x, 0)
		if got != want {
			t.Fatalf("cell %d,0 = %q, want %q", x, got, want)
		}
	}
}

func TestTerminalRunQuits(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	term := NewTerminal(screen, NewPanel(), input.DefaultLines(), nil)

	errc := make(chan error, 1)
	go func() { errc <- term.Run(context.Background()) }()

	// Keep posting until the event loop is up to take it.
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-errc:
			if !errors.Is(err, ErrQuit) {
				t.Fatalf("Run() err = %v, want ErrQuit", err)
			}
			if _, err := term.Wait(context.Background()); !errors.Is(err, ErrQuit) {
				t.Fatalf("Wait() after quit err = %v, want ErrQuit", err)
			}
			return
		case <-tick.C:
			screen.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
		case <-deadline:
			t.Fatal("Run did not return after escape")
		}
	}
}

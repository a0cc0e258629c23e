package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
)

// ErrQuit is returned by Run when the user quits the simulator.
var ErrQuit = errors.New("sim: quit")

const help = "1 2 3: buttons  arrows: joystick  enter: press  esc: quit"

// Terminal draws a Panel with half-block characters and maps keys to the
// input lines of a LineMap. It is an input.Waiter.
type Terminal struct {
	screen tcell.Screen
	panel  *Panel
	lines  map[input.Event]int
	queue  *input.Queue
	logger *slog.Logger
	fini   sync.Once
}

// NewTerminal returns a Terminal for panel on screen. Key presses become the
// line offsets lines assigns to each event.
func NewTerminal(screen tcell.Screen, panel *Panel, lines input.LineMap, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	byEvent := make(map[input.Event]int, len(lines))
	for off, ev := range lines {
		byEvent[ev] = off
	}
	return &Terminal{
		screen: screen,
		panel:  panel,
		lines:  byEvent,
		queue:  input.NewQueue(32),
		logger: logger,
	}
}

// Wait implements input.Waiter.
func (t *Terminal) Wait(ctx context.Context) (int, error) {
	return t.queue.Wait(ctx)
}

// Run owns the screen until ctx is done or the user quits.
func (t *Terminal) Run(ctx context.Context) error {
	if err := t.screen.Init(); err != nil {
		return fmt.Errorf("sim: screen init: %w", err)
	}
	defer t.close()

	stop := make(chan struct{})
	defer close(stop)
	go t.forward(ctx, stop)

	t.draw()
	for {
		switch ev := t.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
			t.draw()
		case *tcell.EventResize:
			t.screen.Sync()
			t.draw()
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
				return ErrQuit
			}
			t.press(ev)
		}
	}
}

// forward wakes the event loop on panel updates and on cancellation.
func (t *Terminal) forward(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-t.panel.Changed():
			_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil)) // queue full means a redraw is pending
		case <-ctx.Done():
			_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil))
			return
		case <-stop:
			return
		}
	}
}

func (t *Terminal) close() {
	t.fini.Do(func() {
		t.screen.Fini()
		t.queue.Close(ErrQuit)
	})
}

func keyEvent(ev *tcell.EventKey) (input.Event, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return input.JoystickUp, true
	case tcell.KeyDown:
		return input.JoystickDown, true
	case tcell.KeyLeft:
		return input.JoystickLeft, true
	case tcell.KeyRight:
		return input.JoystickRight, true
	case tcell.KeyEnter:
		return input.JoystickPressed, true
	case tcell.KeyRune:
		switch ev.Rune() {
		case '1':
			return input.Button1Press, true
		case '2':
			return input.Button2Press, true
		case '3':
			return input.Button3Press, true
		}
	}
	return 0, false
}

func (t *Terminal) press(ev *tcell.EventKey) {
	e, ok := keyEvent(ev)
	if !ok {
		return
	}
	line, ok := t.lines[e]
	if !ok {
		t.logger.Warn("sim:unmapped-event", slog.String("event", e.String()))
		return
	}
	if !t.queue.Push(line) {
		t.logger.Warn("sim:edge-dropped", slog.Int("line", line))
	}
}

// draw renders two pixel rows per terminal row.
func (t *Terminal) draw() {
	lit := tcell.StyleDefault.Foreground(tcell.ColorAqua).Background(tcell.ColorBlack)
	on := t.panel.On()
	for row := 0; row < Height/2; row++ {
		for x := 0; x < Width; x++ {
			top := on && t.panel.Pixel(x, 2*row)
			bottom := on && t.panel.Pixel(x, 2*row+1)
			r := ' '
			switch {
			case top && bottom:
				r = '█'
			case top:
				r = '▀'
			case bottom:
				r = '▄'
			}
			t.screen.SetContent(x, row, r, nil, lit)
		}
	}
	for i, r := range help {
		t.screen.SetContent(i, Height/2+1, r, nil, tcell.StyleDefault)
	}
	t.screen.Show()
}

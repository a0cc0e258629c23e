package input

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

// Waiter blocks until one of a fixed set of interrupt-armed lines fires and
// returns the offset of the line that fired.
type Waiter interface {
	Wait(ctx context.Context) (line int, err error)
}

// Publisher receives classified events.
type Publisher interface {
	Publish(Event)
}

// LineMap maps a GPIO line offset to the event it produces.
type LineMap map[int]Event

// DefaultLines is the Waveshare 1.3" OLED HAT wiring (BCM numbering).
func DefaultLines() LineMap {
	return LineMap{
		21: Button1Press,
		20: Button2Press,
		16: Button3Press,
		6:  JoystickUp,
		19: JoystickDown,
		5:  JoystickLeft,
		26: JoystickRight,
		13: JoystickPressed,
	}
}

// Offsets returns the mapped line offsets in ascending order.
func (m LineMap) Offsets() []int {
	offsets := make([]int, 0, len(m))
	for off := range m {
		offsets = append(offsets, off)
	}
	slices.Sort(offsets)
	return offsets
}

// Poller waits on the input lines and publishes one event per edge. Edges
// are not debounced.
type Poller struct {
	waiter Waiter
	lines  LineMap
	pub    Publisher
	logger *slog.Logger
}

// NewPoller returns a Poller classifying lines from w by lines.
func NewPoller(w Waiter, lines LineMap, pub Publisher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{waiter: w, lines: lines, pub: pub, logger: logger}
}

// Run polls until ctx is done or the wait primitive fails. A wait failure is
// returned and ends polling for good.
func (p *Poller) Run(ctx context.Context) error {
	for {
		line, err := p.waiter.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("input:wait-failed", slog.Any("reason", err))
			return fmt.Errorf("input: wait: %w", err)
		}
		ev, ok := p.lines[line]
		if !ok {
			p.logger.Warn("input:unknown-line", slog.Int("line", line))
			continue
		}
		p.logger.Debug("input:event", slog.Int("line", line), slog.String("event", ev.String()))
		p.pub.Publish(ev)
	}
}

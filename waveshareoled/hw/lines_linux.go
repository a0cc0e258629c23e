//go:build linux

package hw

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/warthog618/go-gpiocdev"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
)

// Lines holds the requested input lines. Wait returns the offset of each
// rising edge in arrival order.
type Lines struct {
	*input.Queue
	lines *gpiocdev.Lines
}

// OpenLines requests offsets on chip as pulled-up inputs interrupting on the
// rising edge (release of an active-low button). Edges arriving while the
// queue is full are dropped and logged.
func OpenLines(chip string, offsets []int, logger *slog.Logger) (*Lines, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	q := input.NewQueue(64)
	lines, err := gpiocdev.RequestLines(chip, offsets,
		gpiocdev.WithConsumer("waveshareoled"),
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(edgeHandler(q, logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("hw: request lines %v on %s: %w", offsets, chip, err)
	}
	return &Lines{Queue: q, lines: lines}, nil
}

// Close releases the lines. Pending and later Waits fail.
func (l *Lines) Close() error {
	err := l.lines.Close()
	l.Queue.Close(fmt.Errorf("hw: input lines released"))
	return err
}

func edgeHandler(q *input.Queue, logger *slog.Logger) func(gpiocdev.LineEvent) {
	return func(evt gpiocdev.LineEvent) {
		if !q.Push(evt.Offset) {
			logger.Warn("hw:edge-dropped", slog.Int("line", evt.Offset))
		}
	}
}

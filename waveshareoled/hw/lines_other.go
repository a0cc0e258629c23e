//go:build !linux

package hw

import (
	"errors"
	"log/slog"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
)

// Lines is unavailable off Linux.
type Lines struct {
	*input.Queue
}

// OpenLines always fails off Linux: the GPIO character device is Linux only.
func OpenLines(chip string, offsets []int, logger *slog.Logger) (*Lines, error) {
	return nil, errors.New("hw: gpio character device requires linux")
}

func (l *Lines) Close() error { return nil }

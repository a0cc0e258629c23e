package oled

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotReady is returned before the power-up sequence has completed.
	ErrNotReady = errors.New("oled: display not initialized")
	// ErrClosed is returned once the render worker has stopped.
	ErrClosed = errors.New("oled: controller closed")
)

// DefaultQueueSize is used when NewController is given a non-positive size.
const DefaultQueueSize = 8

// Controller owns a Device and applies Commands to it one at a time, in
// submission order. Run is the only goroutine that touches the Device after
// Initialize.
type Controller struct {
	device *Device
	queue  chan Command
	logger *slog.Logger

	ready     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates a Controller with a bounded queue of queueSize
// commands.
func NewController(device *Device, queueSize int, logger *slog.Logger) *Controller {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		device: device,
		queue:  make(chan Command, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Initialize runs the power-up sequence. On failure the Controller stays
// uninitialized for good and every Submit returns ErrNotReady.
func (c *Controller) Initialize() error {
	c.logger.Info("oled:init")
	if err := c.device.Init(); err != nil {
		c.logger.Error("oled:init-failed", slog.Any("reason", err))
		return err
	}
	c.ready.Store(true)
	c.logger.Info("oled:ready")
	return nil
}

// Ready reports whether Initialize has succeeded.
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// Submit enqueues cmd for the render worker. It blocks while the queue is
// full and returns once the queue has accepted cmd.
func (c *Controller) Submit(ctx context.Context, cmd Command) error {
	if !c.ready.Load() {
		return ErrNotReady
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.queue <- cmd:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued commands until ctx is done.
// Run should be called once, in a separate goroutine.
func (c *Controller) Run(ctx context.Context) error {
	if !c.ready.Load() {
		return ErrNotReady
	}
	defer c.closeOnce.Do(func() { close(c.done) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.queue:
			if err := c.apply(cmd); err != nil {
				// The panel is not re-initialized; the next command may
				// still get through.
				c.logger.Error("oled:render-failed",
					slog.String("command", cmd.String()),
					slog.Any("reason", err),
				)
			}
		}
	}
}

// apply renders cmd and pushes the full frame.
func (c *Controller) apply(cmd Command) error {
	c.logger.Debug("oled:render", slog.String("command", cmd.String()))
	switch cmd.Kind {
	case CommandClear:
		c.device.ClearBuffer()
	case CommandText:
		c.device.DrawText(cmd.Text)
	default:
		return fmt.Errorf("oled: unknown command kind %d", cmd.Kind)
	}
	return c.device.Display()
}

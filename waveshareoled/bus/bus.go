// Package bus is the command channel between the display controller and the
// panel: one-byte commands and bulk frame data over a synchronous serial
// link, framed by a data/command select line.
//
// Bytes are written in call order, unbuffered. A transfer that moves fewer
// bytes than requested is reported as a *ShortWriteError and never retried.
package bus

import (
	"fmt"
	"io"

	"tinygo.org/x/drivers"
)

// Pin is a single digital output line.
type Pin interface {
	Set(high bool) error
}

// ShortWriteError reports a transfer that did not move every byte.
type ShortWriteError struct {
	Want int
	Got  int
	Err  error // underlying transport error, if any
}

func (e *ShortWriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bus: short write: %d of %d bytes: %v", e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("bus: short write: %d of %d bytes", e.Got, e.Want)
}

func (e *ShortWriteError) Unwrap() error { return e.Err }

// Channel frames writes to the panel. It is not safe for concurrent use: the
// display controller is its only caller.
type Channel struct {
	w   io.Writer
	dc  Pin
	cmd [1]byte
}

// New returns a Channel writing to w, selecting command or data mode with dc.
func New(w io.Writer, dc Pin) *Channel {
	return &Channel{w: w, dc: dc}
}

// Command sends a single command byte with data/command select low.
func (c *Channel) Command(cmd byte) error {
	if err := c.dc.Set(false); err != nil {
		return fmt.Errorf("bus: dc low: %w", err)
	}
	c.cmd[0] = cmd
	return c.write(c.cmd[:])
}

// Data sends p as one burst with data/command select high.
func (c *Channel) Data(p []byte) error {
	if err := c.dc.Set(true); err != nil {
		return fmt.Errorf("bus: dc high: %w", err)
	}
	return c.write(p)
}

func (c *Channel) write(p []byte) error {
	n, err := c.w.Write(p)
	if n != len(p) {
		return &ShortWriteError{Want: len(p), Got: n, Err: err}
	}
	if err != nil {
		return fmt.Errorf("bus: write: %w", err)
	}
	return nil
}

// SPI adapts a tinygo drivers.SPI connection to the io.Writer the Channel
// expects. A failed transaction counts as zero bytes written.
type SPI struct {
	Conn drivers.SPI
}

func (s SPI) Write(p []byte) (int, error) {
	if err := s.Conn.Tx(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

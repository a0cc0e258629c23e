// Package oled drives a 128x64 SH1106 monochrome OLED panel over a bus
// channel and serializes all rendering through a single Controller.
//
// The Device type follows the tinygo drivers layout: Init performs the
// power-up sequence, SetPixel draws into an in-memory buffer, and Display
// pushes the whole buffer to the panel.
package oled

import (
	"fmt"
	"image/color"
	"time"

	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
)

const (
	Width  = 128
	Height = 64
	Pages  = Height / 8

	// The SH1106 has 132 columns of RAM; the visible 128 start at column 2.
	columnLow  = 0x02
	columnHigh = 0x10
	pageBase   = 0xB0
	displayOn  = 0xAF

	resetHold   = 100 * time.Millisecond
	powerSettle = 100 * time.Millisecond
)

// initSequence configures the controller after reset. displayOn follows
// after powerSettle.
var initSequence = [...]byte{
	0xAE,       // panel off
	0x02,       // low column address
	0x10,       // high column address
	0x40,       // display start line 0
	0x81,       // contrast control
	0xA0,       // segment remap
	0xC0,       // COM scan direction
	0xA6,       // normal display
	0xA8, 0x3F, // multiplex ratio 1/64
	0xD3, 0x00, // display offset 0
	0xD5, 0x80, // clock divide ratio / oscillator
	0xD9, 0xF1, // pre-charge 15 clocks, discharge 1 clock
	0xDA, 0x12, // COM pins hardware configuration
	0xDB, 0x40, // VCOM deselect level
	0x20, 0x02, // page addressing mode
	0xA4, // resume to RAM content
	0xA6, // non-inverted
}

var white = color.RGBA{255, 255, 255, 255}

// Config holds the control lines a Device owns besides the bus channel.
type Config struct {
	Reset      bus.Pin
	ChipSelect bus.Pin // optional; held low when set

	// Sleep replaces time.Sleep for the reset and settle delays.
	Sleep func(time.Duration)
}

// Device is one panel plus its frame buffer. The buffer is page-major: byte
// x+page*Width holds rows page*8..page*8+7 of column x, least significant
// bit on top.
type Device struct {
	ch    *bus.Channel
	rst   bus.Pin
	cs    bus.Pin
	sleep func(time.Duration)
	buf   [Width * Pages]byte
}

// NewDevice returns a Device that has not been initialized.
func NewDevice(ch *bus.Channel, cfg Config) *Device {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Device{
		ch:    ch,
		rst:   cfg.Reset,
		cs:    cfg.ChipSelect,
		sleep: sleep,
	}
}

// Init resets the panel and runs the power-up command sequence. Any failure
// leaves the panel unconfigured.
func (d *Device) Init() error {
	if d.cs != nil {
		if err := d.cs.Set(false); err != nil {
			return fmt.Errorf("oled: chip select: %w", err)
		}
	}
	if err := d.reset(); err != nil {
		return err
	}
	for _, cmd := range initSequence {
		if err := d.ch.Command(cmd); err != nil {
			return fmt.Errorf("oled: init command %#02x: %w", cmd, err)
		}
	}
	d.sleep(powerSettle)
	if err := d.ch.Command(displayOn); err != nil {
		return fmt.Errorf("oled: display on: %w", err)
	}
	return nil
}

func (d *Device) reset() error {
	if d.rst == nil {
		return nil
	}
	for _, level := range [...]bool{true, false, true} {
		if err := d.rst.Set(level); err != nil {
			return fmt.Errorf("oled: reset: %w", err)
		}
		d.sleep(resetHold)
	}
	return nil
}

// Size implements drivers.Displayer.
func (d *Device) Size() (x, y int16) {
	return Width, Height
}

// SetPixel implements drivers.Displayer. Black turns the pixel off, any other
// color turns it on. Coordinates outside the panel are ignored.
func (d *Device) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return
	}
	i := int(x) + int(y/8)*Width
	bit := byte(1) << uint(y%8)
	if c.R|c.G|c.B == 0 {
		d.buf[i] &^= bit
	} else {
		d.buf[i] |= bit
	}
}

// GetPixel reports whether the pixel at x, y is lit in the buffer.
func (d *Device) GetPixel(x, y int16) bool {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return false
	}
	return d.buf[int(x)+int(y/8)*Width]&(1<<uint(y%8)) != 0
}

// ClearBuffer turns every pixel in the buffer off without touching the panel.
func (d *Device) ClearBuffer() {
	d.buf = [Width * Pages]byte{}
}

// Buffer returns the frame buffer. The slice aliases the Device's memory.
func (d *Device) Buffer() []byte {
	return d.buf[:]
}

// Display implements drivers.Displayer. It pushes every page of the buffer:
// page address, column address, then one burst of Width data bytes.
func (d *Device) Display() error {
	for page := 0; page < Pages; page++ {
		for _, cmd := range [...]byte{pageBase + byte(page), columnLow, columnHigh} {
			if err := d.ch.Command(cmd); err != nil {
				return fmt.Errorf("oled: page %d: %w", page, err)
			}
		}
		if err := d.ch.Data(d.buf[page*Width : (page+1)*Width]); err != nil {
			return fmt.Errorf("oled: page %d data: %w", page, err)
		}
	}
	return nil
}

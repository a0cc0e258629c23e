// Package hw opens the Raspberry Pi peripherals the provider needs: the SPI
// port and control pins of the panel (periph.io), and the interrupt-armed
// input lines of the buttons and joystick (GPIO character device).
package hw

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PanelConfig names the panel's SPI port and control lines.
type PanelConfig struct {
	SPIPort    string // spireg name; "" picks the first port
	SPIClockHz int64
	DC         string // data/command select, e.g. "GPIO24"
	Reset      string // e.g. "GPIO25"
	ChipSelect string // e.g. "GPIO8"; "" leaves chip select to the SPI driver
}

// Panel is an open SPI connection plus the panel's control pins.
type Panel struct {
	Conn       SPIConn
	DC         *Pin
	Reset      *Pin
	ChipSelect *Pin // nil when not driven manually

	port spi.PortCloser
}

// OpenPanel initializes the host drivers and opens the panel's peripherals.
func OpenPanel(cfg PanelConfig) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hw: host init: %w", err)
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("hw: spi open %q: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(physic.Frequency(cfg.SPIClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("hw: spi connect: %w", err)
	}

	p := &Panel{Conn: SPIConn{Conn: conn}, port: port}
	p.DC, err = outputPin(cfg.DC, gpio.Low)
	if err == nil {
		p.Reset, err = outputPin(cfg.Reset, gpio.High)
	}
	if err == nil && strings.TrimSpace(cfg.ChipSelect) != "" {
		p.ChipSelect, err = outputPin(cfg.ChipSelect, gpio.Low)
	}
	if err != nil {
		port.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the SPI port.
func (p *Panel) Close() error {
	return p.port.Close()
}

// Pin is a periph.io output pin satisfying bus.Pin.
type Pin struct {
	pin gpio.PinOut
}

func outputPin(name string, initial gpio.Level) (*Pin, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("hw: gpio: pin %s: not found", name)
	}
	if err := pin.Out(initial); err != nil {
		return nil, fmt.Errorf("hw: gpio: pin %s: %w", name, err)
	}
	return &Pin{pin: pin}, nil
}

// Set drives the pin high or low.
func (p *Pin) Set(high bool) error {
	return p.pin.Out(gpio.Level(high))
}

// SPIConn adapts a periph.io spi.Conn to tinygo's drivers.SPI.
type SPIConn struct {
	Conn spi.Conn
}

func (c SPIConn) Tx(w, r []byte) error {
	return c.Conn.Tx(w, r)
}

func (c SPIConn) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.Conn.Tx([]byte{b}, r[:])
	return r[0], err
}

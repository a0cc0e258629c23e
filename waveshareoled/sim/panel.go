// Package sim stands in for the panel hardware: Panel decodes the bus
// traffic an SH1106 would receive into its display RAM, and Terminal shows
// that RAM in a terminal and turns key presses into input line edges.
package sim

import (
	"sync"
)

const (
	ramColumns = 132
	pages      = 8
	colOffset  = 2

	// Width and Height are the visible area.
	Width  = 128
	Height = pages * 8
)

// Commands that take one argument byte.
var argCommands = map[byte]bool{
	0x81: true, // contrast
	0xA8: true, // multiplex ratio
	0xAD: true, // DC-DC control
	0xD3: true, // display offset
	0xD5: true, // clock divide
	0xD9: true, // pre-charge
	0xDA: true, // COM pins
	0xDB: true, // VCOM deselect
	0x20: true, // addressing mode
}

// Panel is an io.Writer for the bus and the bus.Pin for its data/command
// select line.
type Panel struct {
	mu      sync.Mutex
	data    bool
	needArg bool
	on      bool
	page    int
	col     int
	ram     [pages][ramColumns]byte
	changed chan struct{}
}

// NewPanel returns a powered-off, blank panel.
func NewPanel() *Panel {
	return &Panel{changed: make(chan struct{}, 1)}
}

// Set implements bus.Pin for the data/command select line.
func (p *Panel) Set(high bool) error {
	p.mu.Lock()
	p.data = high
	p.mu.Unlock()
	return nil
}

// Write decodes b as commands or display data depending on the select line.
func (p *Panel) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.data {
		for _, v := range b {
			if p.col < ramColumns {
				p.ram[p.page][p.col] = v
			}
			p.col++
		}
	} else {
		for _, v := range b {
			p.command(v)
		}
	}
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
	return len(b), nil
}

func (p *Panel) command(v byte) {
	if p.needArg {
		p.needArg = false
		return
	}
	switch {
	case argCommands[v]:
		p.needArg = true
	case v <= 0x0F:
		p.col = p.col&0xF0 | int(v)
	case v >= 0x10 && v <= 0x1F:
		p.col = p.col&0x0F | int(v&0x0F)<<4
	case v >= 0xB0 && v <= 0xB7:
		p.page = int(v - 0xB0)
	case v == 0xAE:
		p.on = false
	case v == 0xAF:
		p.on = true
	}
}

// On reports whether the panel has been switched on.
func (p *Panel) On() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

// Pixel reports whether visible pixel x, y is lit in display RAM.
func (p *Panel) Pixel(x, y int) bool {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ram[y/8][x+colOffset]&(1<<uint(y%8)) != 0
}

// Changed is signalled after writes; several writes may share one signal.
func (p *Panel) Changed() <-chan struct{} {
	return p.changed
}

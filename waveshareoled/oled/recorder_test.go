package oled

import (
	"errors"
	"sync"
	"time"

	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
)

// panel records what a real panel would see on the bus: every command byte,
// and every completed full frame of data bytes.
type panel struct {
	mu       sync.Mutex
	dc       bool
	writes   int
	failAt   int // fail the Nth write (1-based); 0 never fails
	commands []byte
	pending  []byte
	frames   chan []byte
}

func newPanel() *panel {
	return &panel{frames: make(chan []byte, 16)}
}

func (p *panel) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dc = high
	return nil
}

func (p *panel) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	if p.writes == p.failAt {
		return 0, errors.New("bus fault")
	}
	if !p.dc {
		p.commands = append(p.commands, b...)
		return len(b), nil
	}
	p.pending = append(p.pending, b...)
	if len(p.pending) == Width*Pages {
		p.frames <- p.pending
		p.pending = nil
	}
	return len(b), nil
}

func (p *panel) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *panel) resetCommands() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = nil
}

func (p *panel) nextFrame(timeout time.Duration) ([]byte, bool) {
	select {
	case f := <-p.frames:
		return f, true
	case <-time.After(timeout):
		return nil, false
	}
}

type pin struct {
	mu     sync.Mutex
	levels []bool
}

func (p *pin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, high)
	return nil
}

type sleeper struct {
	slept []time.Duration
}

func (s *sleeper) Sleep(d time.Duration) {
	s.slept = append(s.slept, d)
}

func newTestDevice(p *panel) (*Device, *pin, *sleeper) {
	rst := &pin{}
	s := &sleeper{}
	dev := NewDevice(bus.New(p, p), Config{Reset: rst, Sleep: s.Sleep})
	return dev, rst, s
}

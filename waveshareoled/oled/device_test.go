package oled

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
)

func TestDeviceInitSequence(t *testing.T) {
	p := newPanel()
	cs := &pin{}
	rst := &pin{}
	s := &sleeper{}
	dev := NewDevice(bus.New(p, p), Config{Reset: rst, ChipSelect: cs, Sleep: s.Sleep})

	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	want := append(initSequence[:], displayOn)
	if !bytes.Equal(p.commands, want) {
		t.Fatalf("commands = %x, want %x", p.commands, want)
	}
	if len(want) != 25 {
		t.Fatalf("sequence length = %d, want 25", len(want))
	}
	if len(cs.levels) != 1 || cs.levels[0] {
		t.Fatalf("chip select levels = %v, want [false]", cs.levels)
	}
	wantRst := []bool{true, false, true}
	if len(rst.levels) != len(wantRst) {
		t.Fatalf("reset levels = %v, want %v", rst.levels, wantRst)
	}
	for i := range wantRst {
		if rst.levels[i] != wantRst[i] {
			t.Fatalf("reset levels = %v, want %v", rst.levels, wantRst)
		}
	}
	if len(s.slept) != 4 {
		t.Fatalf("slept %v, want 3 reset holds and a settle delay", s.slept)
	}
	if s.slept[3] != powerSettle {
		t.Fatalf("settle = %v, want %v", s.slept[3], powerSettle)
	}
}

func TestDeviceInitShortWrite(t *testing.T) {
	p := newPanel()
	p.failAt = 5
	dev, _, _ := newTestDevice(p)

	err := dev.Init()
	var sw *bus.ShortWriteError
	if !errors.As(err, &sw) {
		t.Fatalf("Init() err = %v, want *bus.ShortWriteError", err)
	}
	if got := p.writeCount(); got != 5 {
		t.Fatalf("writes = %d, want init to stop at the failing write", got)
	}
}

func TestDeviceSetPixel(t *testing.T) {
	dev, _, _ := newTestDevice(newPanel())
	on := color.RGBA{255, 255, 255, 255}
	off := color.RGBA{0, 0, 0, 255}

	dev.SetPixel(3, 9, on)
	if !dev.GetPixel(3, 9) {
		t.Fatal("expected pixel 3,9 lit")
	}
	if got := dev.Buffer()[3+Width]; got != 0x02 {
		t.Fatalf("buffer byte = %#02x, want 0x02", got)
	}
	dev.SetPixel(3, 9, off)
	if dev.GetPixel(3, 9) {
		t.Fatal("expected pixel 3,9 off")
	}

	// Out of range is ignored.
	dev.SetPixel(-1, 0, on)
	dev.SetPixel(Width, 0, on)
	dev.SetPixel(0, Height, on)
	for _, b := range dev.Buffer() {
		if b != 0 {
			t.Fatal("out of range SetPixel touched the buffer")
		}
	}
}

func TestDeviceDisplayAddressing(t *testing.T) {
	p := newPanel()
	dev, _, _ := newTestDevice(p)
	dev.SetPixel(0, 0, color.RGBA{1, 1, 1, 255})
	dev.SetPixel(Width-1, Height-1, color.RGBA{1, 1, 1, 255})

	if err := dev.Display(); err != nil {
		t.Fatalf("Display: %v", err)
	}

	var want []byte
	for page := 0; page < Pages; page++ {
		want = append(want, pageBase+byte(page), columnLow, columnHigh)
	}
	if !bytes.Equal(p.commands, want) {
		t.Fatalf("commands = %x, want %x", p.commands, want)
	}
	frame, ok := p.nextFrame(0)
	if !ok {
		t.Fatal("expected a full frame")
	}
	if frame[0] != 0x01 || frame[len(frame)-1] != 0x80 {
		t.Fatalf("frame corners = %#02x %#02x, want 0x01 0x80", frame[0], frame[len(frame)-1])
	}
}

func TestDeviceDrawText(t *testing.T) {
	dev, _, _ := newTestDevice(newPanel())
	dev.SetPixel(Width-1, Height-1, color.RGBA{1, 1, 1, 255})

	dev.DrawText("b")

	if dev.GetPixel(Width-1, Height-1) {
		t.Fatal("DrawText did not clear the buffer")
	}
	lit := 0
	for x := int16(0); x < 16; x++ {
		for y := int16(0); y < 16; y++ {
			if dev.GetPixel(x, y) {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatal("expected glyph pixels near the top-left corner")
	}
}

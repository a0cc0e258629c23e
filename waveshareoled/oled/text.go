package oled

import (
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// textFont is monospace; every glyph advances the same width.
var textFont tinyfont.Fonter = &proggy.TinySZ8pt7b

// textBaseline puts the first line's glyph tops on row 0.
const textBaseline = 8

// DrawText clears the buffer and rasterizes s from the top-left corner.
// A newline starts the next line; glyphs beyond the panel are clipped.
func (d *Device) DrawText(s string) {
	d.ClearBuffer()
	tinyfont.WriteLine(d, textFont, 0, textBaseline, s, white)
}

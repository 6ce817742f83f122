// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console emulates the demo hardware on a terminal using ANSI color
// codes.
//
// A Dev is a display.TextDisplay. It can also wrap an hbridge.Coils so the
// eight bridge switches are drawn as a strip of colored blocks in front of
// the text, red for a closed high-side switch, blue for a closed low-side
// switch.
//
// Useful to run the stepper demo on a desk without a motor attached.
package console

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"

	"github.com/GermanBionicSystems/stepperdemo/hbridge"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this display.
type Opts struct {
	Rows    int
	Cols    int
	Palette *ansi256.Palette
	// W defaults to a color capable stdout.
	W io.Writer

	_ struct{}
}

var (
	ErrNotImplemented = fmt.Errorf("console: %w", display.ErrNotImplemented)

	colorHigh = color.NRGBA{R: 255, A: 255}
	colorLow  = color.NRGBA{B: 255, A: 255}
	colorOpen = color.NRGBA{R: 48, G: 48, B: 48, A: 255}
)

// Dev is a character display emulator that outputs to the console.
type Dev struct {
	rows    int
	cols    int
	palette ansi256.Palette

	mu      sync.Mutex
	w       io.Writer
	text    [][]rune
	row     int
	col     int
	on      bool
	pattern hbridge.Pattern
	strip   bool
	buf     bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	rows, cols := opts.Rows, opts.Cols
	if rows < 1 {
		rows = 2
	}
	if cols < 1 {
		cols = 16
	}
	d := &Dev{
		rows:    rows,
		cols:    cols,
		palette: *p,
		w:       w,
		text:    make([][]rune, rows),
		on:      true,
	}
	d.clear()
	return d
}

func (d *Dev) String() string {
	return fmt.Sprintf("console{%dx%d}", d.rows, d.cols)
}

// Halt implements conn.Resource.
//
// It resets the terminal colors and moves to a fresh line.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := io.WriteString(d.w, "\n\033[0m")
	return err
}

// AutoScroll is not supported.
func (d *Dev) AutoScroll(enabled bool) error {
	return ErrNotImplemented
}

func (d *Dev) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
	return d.refresh()
}

func (d *Dev) clear() {
	for i := range d.text {
		d.text[i] = []rune(strings.Repeat(" ", d.cols))
	}
	d.row, d.col = 0, 0
}

func (d *Dev) Cols() int {
	return d.cols
}

// Cursor accepts every mode; the cursor is never drawn.
func (d *Dev) Cursor(modes ...display.CursorMode) error {
	return nil
}

func (d *Dev) Display(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = on
	return d.refresh()
}

func (d *Dev) Home() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.row, d.col = 0, 0
	return nil
}

func (d *Dev) MinCol() int {
	return 1
}

func (d *Dev) MinRow() int {
	return 1
}

func (d *Dev) Move(dir display.CursorDirection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch dir {
	case display.Forward:
		if d.col < d.cols-1 {
			d.col++
		}
	case display.Backward:
		if d.col > 0 {
			d.col--
		}
	default:
		return ErrNotImplemented
	}
	return nil
}

func (d *Dev) MoveTo(row, col int) error {
	if row < 1 || row > d.rows || col < 1 || col > d.cols {
		return fmt.Errorf("console.MoveTo(%d,%d) value out of range", row, col)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.row, d.col = row-1, col-1
	return nil
}

func (d *Dev) Rows() int {
	return d.rows
}

// Write writes p as text at the cursor.
func (d *Dev) Write(p []byte) (int, error) {
	if _, err := d.WriteString(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString writes text at the cursor. Text past the end of the row is
// dropped.
func (d *Dev) WriteString(text string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	line := d.text[d.row]
	for _, r := range text {
		if d.col >= d.cols {
			break
		}
		line[d.col] = r
		d.col++
	}
	if err := d.refresh(); err != nil {
		return 0, err
	}
	return len(text), nil
}

// Line returns the current text of a row, 1 based.
func (d *Dev) Line(row int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row < 1 || row > d.rows {
		return ""
	}
	return string(d.text[row-1])
}

// Coils returns c with every successful Apply drawn on the console.
func (d *Dev) Coils(c hbridge.Coils) hbridge.Coils {
	d.mu.Lock()
	d.strip = true
	d.mu.Unlock()
	return &coils{Coils: c, d: d}
}

func (d *Dev) show(p hbridge.Pattern) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p == d.pattern {
		return nil
	}
	d.pattern = p
	return d.refresh()
}

// refresh redraws the whole line. d.mu must be held.
func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	if d.strip {
		for _, ch := range hbridge.DefaultLayout {
			c := colorOpen
			if d.pattern&ch.Bit() != 0 {
				c = colorLow
				if ch.Side == hbridge.High {
					c = colorHigh
				}
			}
			_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		}
		_, _ = d.buf.WriteString("\033[0m ")
	}
	for _, line := range d.text {
		_ = d.buf.WriteByte('|')
		if d.on {
			_, _ = d.buf.WriteString(string(line))
		} else {
			_, _ = d.buf.WriteString(strings.Repeat(" ", d.cols))
		}
	}
	_, _ = d.buf.WriteString("|")
	_, err := d.buf.WriteTo(d.w)
	return err
}

type coils struct {
	hbridge.Coils
	d *Dev
}

func (c *coils) Apply(p hbridge.Pattern) error {
	if err := c.Coils.Apply(p); err != nil {
		return err
	}
	return c.d.show(p)
}

func (c *coils) Halt() error {
	if err := c.Coils.Halt(); err != nil {
		return err
	}
	return c.d.show(hbridge.Off)
}

func (c *coils) String() string {
	return fmt.Sprintf("console{%s}", c.Coils)
}

var _ display.TextDisplay = &Dev{}
var _ hbridge.Coils = &coils{}

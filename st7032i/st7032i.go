// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package st7032i drives character LCDs built on the Sitronix ST7032i, an
// HD44780 compatible controller with an I²C interface, a built-in booster
// for contrast, and a row of segment icons above the characters.
//
// The controller is write only. Every byte sent is preceded by a control
// byte telling whether it is an instruction or display data, and whether
// another control byte follows.
//
// Text is accepted as UTF-8. ASCII and half-width katakana are mapped to the
// character generator ROM; anything else is shown as '?'.
//
// Implements periph.io/x/conn/display/TextDisplay
//
// # Datasheet
//
// https://www.newhavendisplay.com/appnotes/datasheets/LCDs/ST7032.pdf
package st7032i

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
)

const (
	// DefaultAddress is the fixed 7-bit bus address of the controller.
	DefaultAddress uint16 = 0x3e
	// DefaultContrast suits 3.3V modules.
	DefaultContrast byte = 0b101000

	ctrlCommand      byte = 0x00
	ctrlData         byte = 0x40
	ctrlContinuation byte = 0x80

	cmdClear          byte = 0x01
	cmdHome           byte = 0x02
	cmdDisplayControl byte = 0x08
	cmdShift          byte = 0x10
	cmdFunctionSet    byte = 0x30
	cmdSetDDRAM       byte = 0x80

	// Function set flags.
	fsTwoLines     byte = 0x08
	fsInstrTable1  byte = 0x01
	cmdOscillator  byte = 0x14 // IS=1: 1/5 bias, 183Hz frame
	cmdFollower    byte = 0x6c // IS=1: follower on, amplifier ratio 4
	cmdContrastLow byte = 0x70 // IS=1
	cmdPowerIcon   byte = 0x5c // IS=1: icons on, booster on
	cmdIconAddress byte = 0x40 // IS=1

	packageName = "st7032i"
)

var (
	ErrNotImplemented = fmt.Errorf("%s: %w", packageName, display.ErrNotImplemented)

	rowOffsets = []byte{0x00, 0x40}
)

// Opts describes the panel attached to the controller.
type Opts struct {
	Address  uint16
	Rows     int
	Cols     int
	Contrast byte
}

// DefaultOpts is a 2x16 module at the default address.
var DefaultOpts = Opts{Address: DefaultAddress, Rows: 2, Cols: 16, Contrast: DefaultContrast}

// Dev is a handle to an ST7032i based LCD.
type Dev struct {
	rows int
	cols int

	mu       sync.Mutex
	d        *i2c.Dev
	contrast byte
	on       bool
	cursor   bool
	blink    bool
}

func wrap(err error) error {
	if err == nil || strings.HasPrefix(err.Error(), packageName) {
		return err
	}
	return fmt.Errorf("%s: %w", packageName, err)
}

// New initializes the display and returns it cleared, on, with the cursor
// hidden.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Rows < 1 || opts.Rows > len(rowOffsets) || opts.Cols < 1 || opts.Cols > 40 {
		return nil, fmt.Errorf("%s: unsupported geometry %dx%d", packageName, opts.Rows, opts.Cols)
	}
	addr := opts.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	dev := &Dev{
		d:        &i2c.Dev{Bus: bus, Addr: addr},
		rows:     opts.Rows,
		cols:     opts.Cols,
		contrast: opts.Contrast & 0x3f,
	}
	if err := dev.init(); err != nil {
		return nil, wrap(err)
	}
	return dev, nil
}

func (dev *Dev) functionSet(table1 bool) byte {
	v := cmdFunctionSet
	if dev.rows > 1 {
		v |= fsTwoLines
	}
	if table1 {
		v |= fsInstrTable1
	}
	return v
}

func (dev *Dev) contrastCommands() []byte {
	return []byte{
		cmdContrastLow | dev.contrast&0x0f,
		cmdPowerIcon | (dev.contrast>>4)&0x03,
	}
}

// init runs the power-on sequence. The follower circuit needs 200ms to
// stabilize before the display is switched on.
func (dev *Dev) init() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	err := dev.transmit(ctrlCommand, dev.functionSet(false), dev.functionSet(true), cmdOscillator, cmdFollower)
	if err == nil {
		err = dev.transmit(ctrlCommand, dev.contrastCommands()...)
	}
	if err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	dev.on = true
	err = dev.transmit(ctrlCommand, dev.functionSet(false), dev.displayControl(), cmdClear)
	time.Sleep(2 * time.Millisecond)
	return err
}

// transmit sends bytes of one kind in a single bus transaction. Every byte
// but the last is preceded by a control byte with the continuation bit set.
func (dev *Dev) transmit(ctrl byte, b ...byte) error {
	if len(b) == 0 {
		return nil
	}
	w := make([]byte, 0, 2*len(b))
	for ix, v := range b {
		c := ctrl
		if ix < len(b)-1 {
			c |= ctrlContinuation
		}
		w = append(w, c, v)
	}
	return dev.d.Tx(w, nil)
}

func (dev *Dev) command(b ...byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.transmit(ctrlCommand, b...))
}

func (dev *Dev) displayControl() byte {
	v := cmdDisplayControl
	if dev.on {
		v |= 0x04
	}
	if dev.cursor {
		v |= 0x02
	}
	if dev.blink {
		v |= 0x01
	}
	return v
}

// Encode converts UTF-8 text to character ROM codes, at most n of them.
// ASCII passes through, half-width katakana (U+FF61..U+FF9F) map to
// 0xA1..0xDF, and every other rune becomes '?'.
func Encode(text string, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, 0, min(len(text), n))
	for len(text) > 0 && len(out) < n {
		r, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		switch {
		case r == utf8.RuneError:
			out = append(out, '?')
		case r < utf8.RuneSelf:
			out = append(out, byte(r))
		case r >= 0xff61 && r <= 0xff9f:
			out = append(out, byte(0xa1+(r-0xff61)))
		default:
			out = append(out, '?')
		}
	}
	return out
}

// AutoScroll is not supported.
func (dev *Dev) AutoScroll(enabled bool) error {
	return ErrNotImplemented
}

// Return the number of columns the display supports
func (dev *Dev) Cols() int {
	return dev.cols
}

// Clear the display and move the cursor home.
func (dev *Dev) Clear() error {
	err := dev.command(cmdClear)
	time.Sleep(2 * time.Millisecond)
	return err
}

// Set the cursor mode. You can pass multiple arguments.
// Cursor(CursorOff, CursorUnderline)
func (dev *Dev) Cursor(modes ...display.CursorMode) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for _, mode := range modes {
		switch mode {
		case display.CursorOff:
			dev.cursor = false
			dev.blink = false
		case display.CursorUnderline:
			dev.cursor = true
		case display.CursorBlink, display.CursorBlock:
			dev.blink = true
		default:
			return fmt.Errorf("%s: unexpected cursor: %d", packageName, mode)
		}
	}
	return wrap(dev.transmit(ctrlCommand, dev.displayControl()))
}

// Turn the display on / off
func (dev *Dev) Display(on bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.on = on
	return wrap(dev.transmit(ctrlCommand, dev.displayControl()))
}

// Halt clears the display and turns it off.
func (dev *Dev) Halt() error {
	_ = dev.Clear()
	return dev.Display(false)
}

// Move the cursor home (MinRow(),MinCol())
func (dev *Dev) Home() error {
	err := dev.command(cmdHome)
	time.Sleep(2 * time.Millisecond)
	return err
}

// Return the min column position.
func (dev *Dev) MinCol() int {
	return 1
}

// Return the min row position.
func (dev *Dev) MinRow() int {
	return 1
}

// Move the cursor forward or backward.
func (dev *Dev) Move(dir display.CursorDirection) error {
	switch dir {
	case display.Backward:
		return dev.command(cmdShift)
	case display.Forward:
		return dev.command(cmdShift | 0x04)
	default:
		return ErrNotImplemented
	}
}

// Move the cursor to arbitrary position.
func (dev *Dev) MoveTo(row, col int) error {
	if row < dev.MinRow() || row > dev.rows || col < dev.MinCol() || col > dev.cols {
		return fmt.Errorf("%s.MoveTo(%d,%d) value out of range", packageName, row, col)
	}
	return dev.SetDDRAMAddress(rowOffsets[row-1] + byte(col-1))
}

// SetDDRAMAddress moves the cursor to a raw display RAM address; row 2
// starts at 0x40.
func (dev *Dev) SetDDRAMAddress(addr byte) error {
	return dev.command(cmdSetDDRAM | addr&0x7f)
}

// SetContrast sets the 6-bit booster contrast level.
func (dev *Dev) SetContrast(contrast byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.contrast = contrast & 0x3f
	cmds := append([]byte{dev.functionSet(true)}, dev.contrastCommands()...)
	return wrap(dev.transmit(ctrlCommand, append(cmds, dev.functionSet(false))...))
}

// Return the number of rows the display supports.
func (dev *Dev) Rows() int {
	return dev.rows
}

func (dev *Dev) String() string {
	return fmt.Sprintf("%s{%s, Rows: %d Cols: %d}", packageName, dev.d, dev.rows, dev.cols)
}

// Write sends p as display data, unchanged, at the cursor.
func (dev *Dev) Write(p []byte) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.transmit(ctrlData, p...); err != nil {
		return 0, wrap(err)
	}
	return len(p), nil
}

// WriteString encodes text with Encode, clipped to one row, and writes it at
// the cursor. It returns len(text) on success.
func (dev *Dev) WriteString(text string) (int, error) {
	if _, err := dev.Write(Encode(text, dev.cols)); err != nil {
		return 0, err
	}
	return len(text), nil
}

var _ conn.Resource = &Dev{}
var _ display.TextDisplay = &Dev{}

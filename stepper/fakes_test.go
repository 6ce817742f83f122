// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"fmt"
	"strings"
	"sync"

	"github.com/GermanBionicSystems/stepperdemo/hbridge"
	"periph.io/x/conn/v3/display"
)

// fakeCoils records every applied pattern.
type fakeCoils struct {
	mu      sync.Mutex
	latched hbridge.Pattern
	applied []hbridge.Pattern
	halted  int
	err     error
}

func (f *fakeCoils) Apply(p hbridge.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, p)
	f.latched = p
	return nil
}

func (f *fakeCoils) Latched() (hbridge.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latched, nil
}

func (f *fakeCoils) Halt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted++
	f.latched = hbridge.Off
	return nil
}

func (f *fakeCoils) String() string {
	return "fakeCoils"
}

func (f *fakeCoils) history() []hbridge.Pattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hbridge.Pattern(nil), f.applied...)
}

// manualTimer is a Timer the test fires by hand.
type manualTimer struct {
	fn      func()
	running bool
	starts  int
	stops   int
}

func (m *manualTimer) Handle(fn func()) { m.fn = fn }

func (m *manualTimer) Start() {
	m.running = true
	m.starts++
}

func (m *manualTimer) Stop() {
	m.running = false
	m.stops++
}

// fire delivers one tick if the timer is running.
func (m *manualTimer) fire() bool {
	if !m.running {
		return false
	}
	m.fn()
	return true
}

// runUntilStopped fires until the timer is stopped and returns the number of
// ticks delivered. It gives up after limit ticks.
func (m *manualTimer) runUntilStopped(limit int) int {
	n := 0
	for n < limit && m.fire() {
		n++
	}
	return n
}

// gateTimer is a Timer whose Stop blocks until released, to hold the timer
// context in the middle of Tick.
type gateTimer struct {
	mu      sync.Mutex
	running bool
	fn      func()
	entered chan struct{}
	release chan struct{}
}

func newGateTimer() *gateTimer {
	return &gateTimer{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateTimer) Handle(fn func()) { g.fn = fn }

func (g *gateTimer) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = true
}

func (g *gateTimer) Stop() {
	close(g.entered)
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

func (g *gateTimer) isRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// fakeDisplay is a 2x16 display.TextDisplay that keeps the row contents.
// With zeroBased set it numbers rows from 0, like serlcd.
type fakeDisplay struct {
	mu        sync.Mutex
	rows      [2]string
	row       int
	writes    int
	err       error
	zeroBased bool
}

// line returns a row counted from 1.
func (f *fakeDisplay) line(row int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[row-1]
}

func (f *fakeDisplay) AutoScroll(enabled bool) error { return display.ErrNotImplemented }
func (f *fakeDisplay) Clear() error { return nil }
func (f *fakeDisplay) Cols() int { return 16 }
func (f *fakeDisplay) Cursor(modes ...display.CursorMode) error { return nil }
func (f *fakeDisplay) Display(on bool) error { return nil }
func (f *fakeDisplay) Halt() error { return nil }
func (f *fakeDisplay) Home() error { return f.MoveTo(1, 1) }
func (f *fakeDisplay) MinCol() int { return 1 }

func (f *fakeDisplay) MinRow() int {
	if f.zeroBased {
		return 0
	}
	return 1
}

func (f *fakeDisplay) Move(dir display.CursorDirection) error { return display.ErrNotImplemented }
func (f *fakeDisplay) Rows() int { return 2 }
func (f *fakeDisplay) String() string { return "fakeDisplay" }

func (f *fakeDisplay) MoveTo(row, col int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := f.MinRow()
	if row < first || row > first+1 {
		return fmt.Errorf("row %d out of range", row)
	}
	f.row = row - first
	return nil
}

func (f *fakeDisplay) Write(p []byte) (int, error) {
	return f.WriteString(string(p))
}

func (f *fakeDisplay) WriteString(s string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.writes++
	f.rows[f.row] = strings.TrimRight(s, " ")
	return len(s), nil
}

var _ display.TextDisplay = &fakeDisplay{}

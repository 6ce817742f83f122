// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hbridge

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Group drives the switches through a gpio.Group, so each pass is a single
// bulk write: one reset of every opening switch, one set of every closing
// switch.
//
// The group must report the output latch from Read. If Read fails, the
// current state is treated as unknown and the full transition is written.
type Group struct {
	mu       sync.Mutex
	g        gpio.Group
	layout   []Channel
	mask     Pattern
	deadTime time.Duration
}

// NewGroup returns a Group back end. layout[i] names the switch wired to the
// pin at offset i of g; pass nil for DefaultLayout.
func NewGroup(g gpio.Group, layout []Channel, opts *Opts) (*Group, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if layout == nil {
		layout = DefaultLayout
	}
	if n := len(g.Pins()); n < len(layout) {
		return nil, wrap(fmt.Errorf("%w: group has %d pins, layout needs %d", errLayout, n, len(layout)))
	}
	mask, err := checkLayout(layout)
	if err != nil {
		return nil, wrap(err)
	}
	return &Group{
		g:        g,
		layout:   append([]Channel(nil), layout...),
		mask:     mask,
		deadTime: opts.DeadTime,
	}, nil
}

// toGroup converts a pattern to group relative bits.
func (d *Group) toGroup(p Pattern) gpio.GPIOValue {
	var v gpio.GPIOValue
	for ix, ch := range d.layout {
		if p&ch.Bit() != 0 {
			v |= 1 << ix
		}
	}
	return v
}

func (d *Group) fromGroup(v gpio.GPIOValue) Pattern {
	var p Pattern
	for ix, ch := range d.layout {
		if v&(1<<ix) != 0 {
			p |= ch.Bit()
		}
	}
	return p
}

// Apply implements Coils.
func (d *Group) Apply(p Pattern) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p &= d.mask
	if cur, err := d.latched(); err == nil && cur == p {
		return nil
	}
	// A zero mask means "every pin" to gpio.Group, so empty passes are
	// skipped rather than written.
	if opening := d.toGroup(d.mask &^ p); opening != 0 {
		if err := d.g.Out(0, opening); err != nil {
			return wrap(fmt.Errorf("opening switches: %w", err))
		}
	}
	settle(d.deadTime)
	if closing := d.toGroup(p); closing != 0 {
		if err := d.g.Out(closing, closing); err != nil {
			return wrap(fmt.Errorf("closing switches: %w", err))
		}
	}
	return nil
}

// Latched implements Coils.
func (d *Group) Latched() (Pattern, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.latched()
	return p, wrap(err)
}

func (d *Group) latched() (Pattern, error) {
	v, err := d.g.Read(d.toGroup(d.mask))
	if err != nil {
		return 0, err
	}
	return d.fromGroup(v), nil
}

// Halt opens every switch.
func (d *Group) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.g.Out(0, d.toGroup(d.mask)))
}

func (d *Group) String() string {
	return fmt.Sprintf("%s.Group{%s}", packageName, d.g)
}

var _ Coils = &Group{}

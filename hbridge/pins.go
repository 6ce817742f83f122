// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hbridge

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

// Switch binds one bridge transistor to the GPIO line driving its gate.
type Switch struct {
	Pin gpio.PinIO
	Channel
}

// Wire pairs pins with DefaultLayout: pins[0] drives the high-side A switch,
// pins[7] the low-side D switch.
func Wire(pins ...gpio.PinIO) []Switch {
	n := min(len(pins), len(DefaultLayout))
	s := make([]Switch, n)
	for ix := range n {
		s[ix] = Switch{Pin: pins[ix], Channel: DefaultLayout[ix]}
	}
	return s
}

// Pins drives each switch through its own GPIO line.
//
// The switch table is walked in order for both passes, so the write order is
// deterministic and independent of the pattern.
type Pins struct {
	mu       sync.Mutex
	switches []Switch
	mask     Pattern
	deadTime time.Duration
}

// NewPins returns a Pins back end for the given switch table. Every switch
// is left untouched until the first Apply.
func NewPins(switches []Switch, opts *Opts) (*Pins, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	layout := make([]Channel, len(switches))
	for ix, s := range switches {
		if s.Pin == nil {
			return nil, wrap(fmt.Errorf("%w: no pin for %s", errLayout, s.Channel))
		}
		layout[ix] = s.Channel
	}
	mask, err := checkLayout(layout)
	if err != nil {
		return nil, wrap(err)
	}
	return &Pins{
		switches: append([]Switch(nil), switches...),
		mask:     mask,
		deadTime: opts.DeadTime,
	}, nil
}

// Apply implements Coils.
func (d *Pins) Apply(p Pattern) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p &= d.mask
	if d.latched() == p {
		return nil
	}
	for _, s := range d.switches {
		if p&s.Bit() == 0 {
			if err := s.Pin.Out(gpio.Low); err != nil {
				return wrap(fmt.Errorf("opening %s: %w", s.Channel, err))
			}
		}
	}
	settle(d.deadTime)
	for _, s := range d.switches {
		if p&s.Bit() != 0 {
			if err := s.Pin.Out(gpio.High); err != nil {
				return wrap(fmt.Errorf("closing %s: %w", s.Channel, err))
			}
		}
	}
	return nil
}

// Latched implements Coils. It reads the output level of every line.
func (d *Pins) Latched() (Pattern, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latched(), nil
}

func (d *Pins) latched() Pattern {
	var p Pattern
	for _, s := range d.switches {
		if s.Pin.Read() == gpio.High {
			p |= s.Bit()
		}
	}
	return p
}

// Halt opens every switch. All lines are attempted even if one fails.
func (d *Pins) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for _, s := range d.switches {
		err = multierr.Append(err, s.Pin.Out(gpio.Low))
	}
	return wrap(err)
}

func (d *Pins) String() string {
	return fmt.Sprintf("%s.Pins{%d switches}", packageName, len(d.switches))
}

var _ Coils = &Pins{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hbridge drives the eight transistor switches of the two H-bridges
// that energize a four phase stepper motor.
//
// A switch pattern is written in two passes: every switch that must be open
// is turned off, a fixed dead-time elapses, and only then are the switches
// that must be closed turned on. The high-side and low-side transistors of a
// leg are therefore never both conducting, not even transiently.
//
// Two back ends are provided: Pins, which toggles discrete gpio.PinIO lines
// one at a time, and Group, which uses a gpio.Group to open and close all
// affected switches in one bulk write each.
package hbridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3"
)

const packageName = "hbridge"

// Phase is one of the four motor phases. Phases A and C are the two
// polarities of the first winding, B and D those of the second.
type Phase uint8

const (
	PhaseA Phase = iota
	PhaseB
	PhaseC
	PhaseD

	numPhases = 4
)

func (p Phase) String() string {
	if p >= numPhases {
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
	return string("ABCD"[p])
}

// opposite returns the phase driving the same winding with reversed polarity.
func (p Phase) opposite() Phase {
	return p ^ 2
}

// Side selects the upper (supply) or lower (ground) switch of a leg.
type Side uint8

const (
	Low Side = iota
	High
)

func (s Side) String() string {
	if s == High {
		return "High"
	}
	return "Low"
}

// Pattern is the commanded state of all eight switches. The upper nibble
// holds the high-side switches A, B, C, D from bit 7 down, the lower nibble
// the low-side switches in the same order.
type Pattern uint8

const (
	HighA Pattern = 1 << (7 - iota)
	HighB
	HighC
	HighD
	LowA
	LowB
	LowC
	LowD

	// Off opens every switch; the motor coasts.
	Off Pattern = 0
	// Brake closes the four low-side switches, shorting both windings.
	Brake = LowA | LowB | LowC | LowD
)

// Excite returns the pattern that energizes the given phases. Energizing a
// phase closes both its high-side and its low-side switch.
func Excite(phases ...Phase) Pattern {
	var p Pattern
	for _, ph := range phases {
		p |= Channel{Side: High, Phase: ph}.Bit() | Channel{Side: Low, Phase: ph}.Bit()
	}
	return p
}

// ShootThrough reports whether p closes both switches of a physical leg.
//
// The high-side switch of phase X and the low-side switch of the opposite
// phase share a leg, so exciting A and C (or B and D) together shorts the
// supply.
func (p Pattern) ShootThrough() bool {
	for ph := PhaseA; ph < numPhases; ph++ {
		hi := Channel{Side: High, Phase: ph}.Bit()
		lo := Channel{Side: Low, Phase: ph.opposite()}.Bit()
		if p&hi != 0 && p&lo != 0 {
			return true
		}
	}
	return false
}

func (p Pattern) String() string {
	var b strings.Builder
	for _, side := range []Side{High, Low} {
		if side == Low {
			b.WriteByte('/')
		}
		for ph := PhaseA; ph < numPhases; ph++ {
			if p&(Channel{Side: side, Phase: ph}).Bit() != 0 {
				b.WriteString(ph.String())
			} else {
				b.WriteByte('-')
			}
		}
	}
	return b.String()
}

// Channel identifies one switch by its side and phase.
type Channel struct {
	Side  Side
	Phase Phase
}

// Bit returns the Pattern bit controlling the switch.
func (c Channel) Bit() Pattern {
	shift := 3 - uint(c.Phase&3)
	if c.Side == High {
		shift += 4
	}
	return 1 << shift
}

func (c Channel) String() string {
	return c.Side.String() + c.Phase.String()
}

// DefaultLayout lists the eight switches in Pattern bit order, most
// significant first.
var DefaultLayout = []Channel{
	{High, PhaseA}, {High, PhaseB}, {High, PhaseC}, {High, PhaseD},
	{Low, PhaseA}, {Low, PhaseB}, {Low, PhaseC}, {Low, PhaseD},
}

// Coils is implemented by the switch back ends.
type Coils interface {
	conn.Resource
	// Apply drives the switches to p, opening before closing. It is a no-op
	// when the switches already read back as p.
	Apply(p Pattern) error
	// Latched reads the current switch state back from the hardware.
	Latched() (Pattern, error)
}

// ShortBrake closes all four low-side switches and opens the high side.
func ShortBrake(c Coils) error {
	return c.Apply(Brake)
}

// Opts holds the switching parameters.
type Opts struct {
	// DeadTime is the minimum interval between the last switch opening and the
	// first switch closing. Use the switch-off time of the transistors plus a
	// margin.
	DeadTime time.Duration
}

// DefaultOpts is suitable for logic level MOSFET bridges.
var DefaultOpts = Opts{DeadTime: 500 * time.Nanosecond}

var errLayout = errors.New("invalid switch layout")

func wrap(err error) error {
	if err == nil || strings.HasPrefix(err.Error(), packageName) {
		return err
	}
	return fmt.Errorf("%s: %w", packageName, err)
}

// checkLayout rejects layouts that name the same switch twice.
func checkLayout(layout []Channel) (Pattern, error) {
	if len(layout) == 0 || len(layout) > 2*numPhases {
		return 0, fmt.Errorf("%w: %d switches", errLayout, len(layout))
	}
	var mask Pattern
	for _, ch := range layout {
		if ch.Phase >= numPhases || ch.Side > High {
			return 0, fmt.Errorf("%w: %v", errLayout, ch)
		}
		if mask&ch.Bit() != 0 {
			return 0, fmt.Errorf("%w: %s listed twice", errLayout, ch)
		}
		mask |= ch.Bit()
	}
	return mask, nil
}

// settle busy-waits for d on the monotonic clock. Dead-times are far below
// the scheduler's sleep granularity.
func settle(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}

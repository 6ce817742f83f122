// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"fmt"
	"strings"

	"github.com/GermanBionicSystems/stepperdemo/hbridge"
)

// Mode is the excitation sequence used to drive the motor.
type Mode uint8

const (
	// Wave energizes one phase at a time: A, B, C, D.
	Wave Mode = iota
	// FullStep energizes two adjacent phases: AB, BC, CD, DA.
	FullStep
	// HalfStep alternates one and two phases: A, AB, B, BC, C, CD, D, DA.
	// It doubles the resolution; torque differs between odd and even steps.
	HalfStep
)

var modeNames = [...]string{Wave: "wave", FullStep: "full", HalfStep: "half"}

func (m Mode) String() string {
	if int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
	return modeNames[m]
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	for ix, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(ix), nil
		}
	}
	return 0, fmt.Errorf("%s: unknown drive mode %q", packageName, s)
}

var tables = func() [3][]hbridge.Pattern {
	a, b, c, d := hbridge.PhaseA, hbridge.PhaseB, hbridge.PhaseC, hbridge.PhaseD
	ex := hbridge.Excite
	return [...][]hbridge.Pattern{
		Wave:     {ex(a), ex(b), ex(c), ex(d)},
		FullStep: {ex(a, b), ex(b, c), ex(c, d), ex(d, a)},
		HalfStep: {ex(a), ex(a, b), ex(b), ex(b, c), ex(c), ex(c, d), ex(d), ex(d, a)},
	}
}()

// Table returns a copy of the mode's excitation sequence.
func (m Mode) Table() []hbridge.Pattern {
	if int(m) >= len(tables) {
		return nil
	}
	return append([]hbridge.Pattern(nil), tables[m]...)
}

// TableIndex maps any step count, negative included, into [0, length).
func TableIndex(step int32, length int) int {
	l := int64(length)
	return int((int64(step)%l + l) % l)
}

// Rotation is the direction the step count moves on each tick.
//
// Clockwise counts up. The step count is positive after clockwise travel from
// home.
type Rotation int8

const (
	CW  Rotation = 1
	CCW Rotation = -1
)

// Sign returns +1 or -1.
func (r Rotation) Sign() int32 {
	if r < 0 {
		return -1
	}
	return 1
}

// Reverse returns the opposite direction.
func (r Rotation) Reverse() Rotation {
	if r < 0 {
		return CW
	}
	return CCW
}

func (r Rotation) String() string {
	if r < 0 {
		return "CCW"
	}
	return "CW"
}

// ParseRotation accepts "cw" or "ccw" in any case.
func ParseRotation(s string) (Rotation, error) {
	switch strings.ToLower(s) {
	case "cw":
		return CW, nil
	case "ccw":
		return CCW, nil
	}
	return 0, fmt.Errorf("%s: unknown rotation %q", packageName, s)
}

// Sequencer converts a step count into a coil pattern.
type Sequencer struct {
	coils hbridge.Coils
	mode  Mode
	table []hbridge.Pattern
}

// NewSequencer returns a Sequencer driving coils in mode m.
func NewSequencer(coils hbridge.Coils, m Mode) (*Sequencer, error) {
	if int(m) >= len(tables) {
		return nil, fmt.Errorf("%s: invalid drive mode %d", packageName, m)
	}
	return &Sequencer{coils: coils, mode: m, table: tables[m]}, nil
}

// Mode returns the drive mode.
func (s *Sequencer) Mode() Mode {
	return s.mode
}

// Advance energizes the pattern for step and returns the next step count in
// direction r, along with the pattern applied.
//
// The returned step is valid even when err is not nil; err only reports that
// the coils could not be switched.
func (s *Sequencer) Advance(step int32, r Rotation) (int32, hbridge.Pattern, error) {
	p := s.table[TableIndex(step, len(s.table))]
	err := s.coils.Apply(p)
	return step + r.Sign(), p, err
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"sync/atomic"
)

// State of the motion state machine.
type State uint32

const (
	// Stopped: the timer is disabled and the step count is frozen.
	Stopped State = iota
	// Running: the timer is enabled and every tick moves one step.
	Running
)

func (s State) String() string {
	if s == Running {
		return "Running"
	}
	return "Stopped"
}

// Motion owns the step count and rotation.
//
// Tick runs in timer context and is the only writer of the step count.
// The foreground writes the rotation, and only while the timer is stopped,
// so no lock is needed; the atomics give untorn reads across contexts.
type Motion struct {
	seq        *Sequencer
	timer      Timer
	milestones Milestones

	step     atomic.Int32
	rotation atomic.Int32
	state    atomic.Uint32
	pending  atomic.Uint32
	faults   atomic.Uint64
}

// NewMotion returns a Motion in the Running state at step 0 and registers
// its Tick with t. The timer itself is not started.
func NewMotion(seq *Sequencer, t Timer, m Milestones, r Rotation) *Motion {
	mo := &Motion{seq: seq, timer: t, milestones: m}
	mo.rotation.Store(r.Sign())
	mo.state.Store(uint32(Running))
	t.Handle(mo.Tick)
	return mo
}

// Tick advances one step. On reaching a milestone it stops the timer,
// records the action and moves to Stopped, in that order, so the step count
// never passes a milestone and a foreground that observes Stopped always
// finds the timer disabled.
func (m *Motion) Tick() {
	if m.State() != Running {
		return
	}
	next, _, err := m.seq.Advance(m.step.Load(), m.Rotation())
	if err != nil {
		m.faults.Add(1)
	}
	m.step.Store(next)
	if a := m.milestones.Classify(next); a != None {
		m.timer.Stop()
		m.pending.Store(uint32(a))
		m.state.Store(uint32(Stopped))
	}
}

// Resume clears the pending action and restarts the timer.
func (m *Motion) Resume() {
	m.pending.Store(uint32(None))
	m.state.Store(uint32(Running))
	m.timer.Start()
}

// halt stops the timer without recording an action.
func (m *Motion) halt() {
	m.timer.Stop()
	m.state.Store(uint32(Stopped))
}

// reverse flips the rotation. Call only while Stopped.
func (m *Motion) reverse() {
	m.rotation.Store(int32(m.Rotation().Reverse()))
}

// Step returns the current step count.
func (m *Motion) Step() int32 {
	return m.step.Load()
}

// Rotation returns the current direction.
func (m *Motion) Rotation() Rotation {
	return Rotation(m.rotation.Load())
}

// State returns Running or Stopped.
func (m *Motion) State() State {
	return State(m.state.Load())
}

// Pending returns the action that stopped the motor, or None.
func (m *Motion) Pending() Action {
	return Action(m.pending.Load())
}

// Faults returns the number of ticks whose coil switching failed.
func (m *Motion) Faults() uint64 {
	return m.faults.Load()
}

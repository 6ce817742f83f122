// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepper runs a four phase stepper motor through a fixed
// demonstration: it steps from a periodic timer, stops at 90° to report the
// position, spins freely to 900°, reverses, and repeats in the other
// direction forever.
//
// Work is split between two contexts. The timer handler (Motion.Tick) only
// switches the coils and compares the step count against the milestones.
// The foreground (Controller) does everything slow: display updates and
// dwell delays. The timer is stopped for the whole duration of a milestone
// action, which is what keeps the two contexts from writing the same state.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/stepperdemo/hbridge"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/display"
)

const packageName = "stepper"

// Opts configures the demonstration.
type Opts struct {
	// Mode is the excitation sequence.
	Mode Mode
	// StepsPerQuarterTurn is the milestone unit, in steps of Mode. 200
	// half-steps is 90° on a 200 step/rev motor.
	StepsPerQuarterTurn int32
	// Dwell is how long the motor rests at a milestone.
	Dwell time.Duration
	// InitialRotation is the direction at power on.
	InitialRotation Rotation
	// Period is the step interval for timers built from these options.
	Period time.Duration
	// Refresh is the foreground polling and position display interval.
	Refresh time.Duration
	// Title is shown on the first display row.
	Title string
	// Logger receives foreground diagnostics. nil discards them.
	Logger *zap.Logger
}

// DefaultOpts reproduces the demonstration board settings.
var DefaultOpts = Opts{
	Mode:                HalfStep,
	StepsPerQuarterTurn: 200,
	Dwell:               time.Second,
	InitialRotation:     CW,
	Period:              2 * time.Millisecond,
	Refresh:             50 * time.Millisecond,
	Title:               "ｽﾃｯﾋﾟﾝｸﾞﾓｰﾀｰ ﾃｽﾄ",
}

func (o *Opts) validate() error {
	switch {
	case int(o.Mode) >= len(tables):
		return fmt.Errorf("%s: invalid drive mode %d", packageName, o.Mode)
	case o.StepsPerQuarterTurn <= 0:
		return fmt.Errorf("%s: steps per quarter turn must be positive, got %d", packageName, o.StepsPerQuarterTurn)
	case o.InitialRotation != CW && o.InitialRotation != CCW:
		return fmt.Errorf("%s: invalid rotation %d", packageName, o.InitialRotation)
	case o.Dwell < 0:
		return fmt.Errorf("%s: negative dwell %s", packageName, o.Dwell)
	case o.Refresh <= 0:
		return fmt.Errorf("%s: refresh interval must be positive, got %s", packageName, o.Refresh)
	}
	return nil
}

// Controller is the foreground half: it dispatches milestone actions and
// keeps the display current.
type Controller struct {
	opts   Opts
	coils  hbridge.Coils
	motion *Motion
	report *Reporter
	logger *zap.Logger
	faults uint64
}

// New wires coils, timer and display together. d may be nil when no
// display is fitted. The timer is registered but not started; call Run.
func New(coils hbridge.Coils, t Timer, d display.TextDisplay, opts *Opts) (*Controller, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	seq, err := NewSequencer(coils, o.Mode)
	if err != nil {
		return nil, err
	}
	return &Controller{
		opts:   o,
		coils:  coils,
		motion: NewMotion(seq, t, Milestones{QuarterTurn: o.StepsPerQuarterTurn}, o.InitialRotation),
		report: NewReporter(d, o.Logger),
		logger: o.Logger,
	}, nil
}

// Motion returns the state machine driven by the timer.
func (c *Controller) Motion() *Motion {
	return c.motion
}

// Service runs the pending milestone action if the motor is stopped and
// returns it. It returns None without blocking while the motor runs.
//
// The action reports the position, dwells, then resumes the timer. If ctx is
// cancelled during the dwell the motor stays stopped.
func (c *Controller) Service(ctx context.Context) (Action, error) {
	m := c.motion
	if m.State() != Stopped {
		return None, nil
	}
	a := m.Pending()
	if a == ReverseAndReport {
		m.reverse()
	}
	c.report.Position(m.Step())
	c.logger.Info("milestone",
		zap.Stringer("action", a),
		zap.Int32("step", m.Step()),
		zap.Stringer("rotation", m.Rotation()))
	if err := sleep(ctx, c.opts.Dwell); err != nil {
		return a, err
	}
	m.Resume()
	return a, nil
}

// Run shows the title and home position, brakes the motor, starts the timer
// and services milestones until ctx is done. On return the timer is stopped
// and the coils have been halted once. A tick already in flight may still
// apply a pattern afterwards, so a caller running the timer on another
// goroutine joins it and calls Halt on the coils again.
func (c *Controller) Run(ctx context.Context) error {
	c.report.Title(c.opts.Title)
	c.report.Position(c.motion.Step())
	if err := hbridge.ShortBrake(c.coils); err != nil {
		c.logger.Warn("short brake failed", zap.Error(err))
	}
	defer func() {
		c.motion.halt()
		if err := c.coils.Halt(); err != nil {
			c.logger.Error("releasing coils", zap.Error(err))
		}
	}()
	c.motion.Resume()

	tk := time.NewTicker(c.opts.Refresh)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}
		a, err := c.Service(ctx)
		if err != nil {
			return err
		}
		if a == None {
			c.report.Position(c.motion.Step())
		}
		c.checkFaults()
	}
}

// checkFaults logs coil failures counted by the timer handler since the
// last call.
func (c *Controller) checkFaults() {
	n := c.motion.Faults()
	if n == c.faults {
		return
	}
	c.logger.Warn("coil switching failed", zap.Uint64("ticks", n-c.faults), zap.Uint64("total", n))
	c.faults = n
}

func (c *Controller) String() string {
	return fmt.Sprintf("%s{%s, %s, %d/quarter}", packageName, c.coils, c.opts.Mode, c.opts.StepsPerQuarterTurn)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsShutdown reports whether err is the normal end of Run.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

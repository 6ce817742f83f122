// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/stepperdemo/hbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type rig struct {
	c     *Controller
	coils *fakeCoils
	timer *manualTimer
	disp  *fakeDisplay
}

func newRig(t *testing.T, opts Opts) *rig {
	r := &rig{coils: &fakeCoils{}, timer: &manualTimer{}, disp: &fakeDisplay{}}
	c, err := New(r.coils, r.timer, r.disp, &opts)
	if err != nil {
		t.Fatal(err)
	}
	r.c = c
	return r
}

func testOpts() Opts {
	o := DefaultOpts
	o.Dwell = 0
	o.Refresh = time.Millisecond
	return o
}

// leg runs the timer to the next milestone and services it.
func (r *rig) leg(t *testing.T, wantTicks int, wantStep int32, wantAction Action) {
	t.Helper()
	m := r.c.Motion()
	if n := r.timer.runUntilStopped(10 * wantTicks); n != wantTicks {
		t.Fatalf("stopped after %d ticks at step %d, want %d ticks", n, m.Step(), wantTicks)
	}
	if m.Step() != wantStep || m.State() != Stopped || m.Pending() != wantAction {
		t.Fatalf("got step %d %s %s, want step %d Stopped %s", m.Step(), m.State(), m.Pending(), wantStep, wantAction)
	}
	if r.timer.running {
		t.Fatalf("timer enabled while stopped at step %d", m.Step())
	}
	a, err := r.c.Service(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a != wantAction {
		t.Fatalf("Service() = %s, want %s", a, wantAction)
	}
	if m.State() != Running || !r.timer.running {
		t.Fatalf("not resumed after %s", a)
	}
}

func TestMotionInitialState(t *testing.T) {
	r := newRig(t, testOpts())
	m := r.c.Motion()
	if m.Step() != 0 || m.Rotation() != CW || m.State() != Running || m.Pending() != None {
		t.Errorf("initial state: step %d %s %s %s", m.Step(), m.Rotation(), m.State(), m.Pending())
	}
	if r.timer.running {
		t.Error("timer started before Run")
	}
	if a, err := r.c.Service(context.Background()); a != None || err != nil {
		t.Errorf("Service() while running = %s, %v", a, err)
	}
}

func TestMotionStopsAtQuarterTurn(t *testing.T) {
	r := newRig(t, testOpts())
	m := r.c.Motion()
	m.Resume()
	if n := r.timer.runUntilStopped(1000); n != 200 {
		t.Fatalf("stopped after %d ticks", n)
	}
	if m.Step() != 200 || m.Pending() != StopAndReport || r.timer.stops != 1 {
		t.Fatalf("step %d pending %s stops %d", m.Step(), m.Pending(), r.timer.stops)
	}
	if n := len(r.coils.history()); n != 200 {
		t.Errorf("%d patterns applied, want 200", n)
	}

	// A stray tick after the stop must not move the motor.
	m.Tick()
	if m.Step() != 200 {
		t.Fatalf("tick while stopped moved to %d", m.Step())
	}

	a, err := r.c.Service(context.Background())
	if err != nil || a != StopAndReport {
		t.Fatalf("Service() = %s, %v", a, err)
	}
	if got := r.disp.line(2); got != "CW   200 pulses" {
		t.Errorf("row 2 = %q", got)
	}
	if m.State() != Running || !r.timer.running || m.Pending() != None {
		t.Fatalf("not resumed: %s timer %t pending %s", m.State(), r.timer.running, m.Pending())
	}
	r.timer.fire()
	if m.Step() != 201 {
		t.Errorf("step after resume = %d, want 201", m.Step())
	}
}

func TestMotionReversal(t *testing.T) {
	r := newRig(t, testOpts())
	m := r.c.Motion()
	m.Resume()

	r.leg(t, 200, 200, StopAndReport)
	r.leg(t, 1800, 2000, ReverseAndReport)
	if m.Rotation() != CCW {
		t.Fatalf("rotation %s after reversal", m.Rotation())
	}
	if got := r.disp.line(2); got != "CW  2000 pulses" {
		t.Errorf("row 2 = %q", got)
	}
	r.timer.fire()
	if m.Step() != 1999 {
		t.Fatalf("first tick after reversal reached %d, want 1999", m.Step())
	}
	r.leg(t, 1799, 200, StopAndReport)
	r.leg(t, 200, 0, HomeAndReport)
	if got := r.disp.line(2); got != " HOME position." {
		t.Errorf("row 2 = %q", got)
	}
	r.leg(t, 200, -200, StopAndReport)
	if got := r.disp.line(2); got != "CCW   200 pulses" {
		t.Errorf("row 2 = %q", got)
	}
	r.leg(t, 1800, -2000, ReverseAndReport)
	if m.Rotation() != CW {
		t.Fatalf("rotation %s after second reversal", m.Rotation())
	}
	r.timer.fire()
	if m.Step() != -1999 {
		t.Errorf("step = %d, want -1999", m.Step())
	}
}

func TestMilestoneWaitsForTimerStop(t *testing.T) {
	g := newGateTimer()
	o := testOpts()
	c, err := New(&fakeCoils{}, g, &fakeDisplay{}, &o)
	if err != nil {
		t.Fatal(err)
	}
	m := c.Motion()
	m.step.Store(199)
	m.Resume()

	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		m.Tick()
	}()
	<-g.entered

	// The timer context is inside Stop; the foreground must not act yet.
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if a, err := c.Service(ctx); a != None || err != nil {
			t.Fatalf("Service() = %s, %v before the timer was stopped", a, err)
		}
		time.Sleep(time.Millisecond)
	}
	if m.State() != Running {
		t.Fatalf("state %s published before the timer was stopped", m.State())
	}

	close(g.release)
	<-ticked
	if m.State() != Stopped || m.Pending() != StopAndReport || g.isRunning() {
		t.Fatalf("after tick: %s pending %s timer %t", m.State(), m.Pending(), g.isRunning())
	}
	if a, err := c.Service(ctx); a != StopAndReport || err != nil {
		t.Fatalf("Service() = %s, %v", a, err)
	}
	if m.State() != Running || !g.isRunning() {
		t.Fatalf("not resumed: %s timer %t", m.State(), g.isRunning())
	}
}

func TestMotionModes(t *testing.T) {
	for _, mode := range []Mode{Wave, FullStep} {
		o := testOpts()
		o.Mode = mode
		o.StepsPerQuarterTurn = 50
		o.InitialRotation = CCW
		r := newRig(t, o)
		r.c.Motion().Resume()
		r.leg(t, 50, -50, StopAndReport)
		table := mode.Table()
		for ix, p := range r.coils.history() {
			if want := table[TableIndex(int32(-ix), len(table))]; p != want {
				t.Fatalf("%s tick %d applied %s, want %s", mode, ix, p, want)
			}
		}
	}
}

func TestMotionFaults(t *testing.T) {
	r := newRig(t, testOpts())
	r.coils.err = errors.New("bus")
	m := r.c.Motion()
	m.Resume()
	for range 3 {
		r.timer.fire()
	}
	if m.Step() != 3 || m.Faults() != 3 {
		t.Errorf("step %d faults %d, want 3 and 3", m.Step(), m.Faults())
	}
}

func TestServiceDwell(t *testing.T) {
	o := testOpts()
	o.Dwell = 20 * time.Millisecond
	r := newRig(t, o)
	m := r.c.Motion()
	m.Resume()
	r.timer.runUntilStopped(1000)

	start := time.Now()
	if _, err := r.c.Service(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d < o.Dwell {
		t.Errorf("dwell lasted %s, want at least %s", d, o.Dwell)
	}

	o.Dwell = time.Hour
	r = newRig(t, o)
	m = r.c.Motion()
	m.Resume()
	r.timer.runUntilStopped(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, err := r.c.Service(ctx)
	if a != StopAndReport || !errors.Is(err, context.Canceled) {
		t.Fatalf("Service() = %s, %v", a, err)
	}
	if m.State() != Stopped || r.timer.running {
		t.Error("resumed after cancelled dwell")
	}
}

func TestNewValidates(t *testing.T) {
	for name, mutate := range map[string]func(*Opts){
		"mode":     func(o *Opts) { o.Mode = 7 },
		"quarter":  func(o *Opts) { o.StepsPerQuarterTurn = 0 },
		"rotation": func(o *Opts) { o.InitialRotation = 0 },
		"dwell":    func(o *Opts) { o.Dwell = -time.Second },
		"refresh":  func(o *Opts) { o.Refresh = 0 },
	} {
		o := DefaultOpts
		mutate(&o)
		if _, err := New(&fakeCoils{}, &manualTimer{}, nil, &o); err == nil {
			t.Errorf("%s: New() accepted invalid options", name)
		}
	}
	c, err := New(&fakeCoils{}, &manualTimer{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := c.String(); s != "stepper{fakeCoils, half, 200/quarter}" {
		t.Errorf("String() = %q", s)
	}
}

func TestRun(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	o := DefaultOpts
	o.Dwell = time.Millisecond
	o.Refresh = time.Millisecond
	o.Logger = zap.New(core)
	coils := &fakeCoils{}
	disp := &fakeDisplay{}
	tk := NewTicker(50 * time.Microsecond)
	c, err := New(coils, tk, disp, &o)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = tk.Run(ctx)
	}()
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	for logs.FilterMessage("milestone").Len() == 0 || c.Motion().Step() <= 200 {
		if ctx.Err() != nil {
			t.Fatalf("no progress: step %d", c.Motion().Step())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !IsShutdown(err) {
		t.Errorf("Run() = %v", err)
	}
	wg.Wait()

	if tk.Running() {
		t.Error("timer still running after Run")
	}
	if coils.history()[0] != hbridge.Brake {
		t.Errorf("first pattern %s, want brake", coils.history()[0])
	}
	coils.mu.Lock()
	halted := coils.halted
	coils.mu.Unlock()
	if halted == 0 {
		t.Error("coils not released")
	}
	// The timer goroutine is joined; a second Halt leaves the coils open.
	if err := coils.Halt(); err != nil {
		t.Fatal(err)
	}
	if p, _ := coils.Latched(); p != hbridge.Off {
		t.Errorf("latched %s after the final halt", p)
	}
	if got := disp.line(1); got != o.Title {
		t.Errorf("row 1 = %q, want %q", got, o.Title)
	}
	entry := logs.FilterMessage("milestone").All()[0]
	if got := entry.ContextMap()["action"]; got != "StopAndReport" {
		t.Errorf("first milestone action = %v", got)
	}
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a periodic tick source with a single registered handler.
//
// The handler must never run concurrently with itself. Stop may be called
// from inside the handler; no further call happens until Start.
type Timer interface {
	Handle(fn func())
	Start()
	Stop()
}

// Ticker is a Timer backed by time.Ticker, for hosts without a hardware
// timer interrupt.
//
// Run calls the handler from a single goroutine, so a slow handler delays
// the next tick instead of overlapping it. Ticks that elapse while the
// handler runs are dropped, like a timer with one pending flag.
type Ticker struct {
	period  time.Duration
	enabled atomic.Bool

	mu sync.Mutex
	fn func()
}

// NewTicker returns a stopped Ticker.
func NewTicker(period time.Duration) *Ticker {
	return &Ticker{period: period}
}

// Handle registers fn, replacing any previous handler.
func (t *Ticker) Handle(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
}

// Start enables the handler.
func (t *Ticker) Start() {
	t.enabled.Store(true)
}

// Stop disables the handler. A call in progress runs to completion.
func (t *Ticker) Stop() {
	t.enabled.Store(false)
}

// Running reports whether the handler is enabled.
func (t *Ticker) Running() bool {
	return t.enabled.Load()
}

// Run delivers ticks until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	if t.period <= 0 {
		return fmt.Errorf("%s: invalid tick period %s", packageName, t.period)
	}
	tk := time.NewTicker(t.period)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}
		if !t.enabled.Load() {
			continue
		}
		t.mu.Lock()
		fn := t.fn
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (t *Ticker) String() string {
	return fmt.Sprintf("Ticker{%s}", t.period)
}

var _ Timer = &Ticker{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// stepperdemo runs a stepper motor through the quarter turn / ten quarter
// turn demonstration, reporting the position on an ST7032i LCD.
//
// With -sim no hardware is touched: the switches are simulated and both the
// switch states and the LCD are drawn on the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/GermanBionicSystems/stepperdemo/console"
	"github.com/GermanBionicSystems/stepperdemo/hbridge"
	"github.com/GermanBionicSystems/stepperdemo/st7032i"
	"github.com/GermanBionicSystems/stepperdemo/stepper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const defaultPins = "GPIO17,GPIO27,GPIO22,GPIO23,GPIO5,GPIO6,GPIO13,GPIO19"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stepperdemo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := stepper.DefaultOpts
	sim := flag.Bool("sim", false, "simulate the bridge and the LCD on the terminal")
	bus := flag.String("i2c", "", "I²C bus of the LCD")
	addr := flag.Uint("addr", uint(st7032i.DefaultAddress), "I²C address of the LCD")
	contrast := flag.Uint("contrast", uint(st7032i.DefaultContrast), "LCD contrast, 0-63")
	pins := flag.String("pins", defaultPins, "bridge switches HighA..HighD,LowA..LowD")
	mode := flag.String("mode", opts.Mode.String(), "excitation: wave, full or half")
	rotation := flag.String("rotation", opts.InitialRotation.String(), "initial rotation: CW or CCW")
	quarter := flag.Int("quarter", int(opts.StepsPerQuarterTurn), "steps per quarter turn")
	flag.DurationVar(&opts.Dwell, "dwell", opts.Dwell, "rest at each milestone")
	flag.DurationVar(&opts.Period, "period", opts.Period, "step interval")
	deadTime := flag.Duration("dead-time", hbridge.DefaultOpts.DeadTime, "bridge dead time")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	opts.Logger = logger

	if opts.Mode, err = stepper.ParseMode(*mode); err != nil {
		return err
	}
	if opts.InitialRotation, err = stepper.ParseRotation(*rotation); err != nil {
		return err
	}
	opts.StepsPerQuarterTurn = int32(*quarter)

	var coils hbridge.Coils
	var lcd display.TextDisplay
	bridgeOpts := hbridge.Opts{DeadTime: *deadTime}
	if *sim {
		term := console.New(&console.Opts{Rows: 2, Cols: 16})
		defer term.Halt()
		p, err := hbridge.NewPins(hbridge.Wire(simPins()...), &bridgeOpts)
		if err != nil {
			return err
		}
		coils = term.Coils(p)
		lcd = term
	} else {
		if _, err := host.Init(); err != nil {
			return err
		}
		p, err := openPins(*pins)
		if err != nil {
			return err
		}
		if coils, err = hbridge.NewPins(hbridge.Wire(p...), &bridgeOpts); err != nil {
			return err
		}
		b, err := i2creg.Open(*bus)
		if err != nil {
			return err
		}
		defer b.Close()
		dev, err := st7032i.New(b, &st7032i.Opts{Address: uint16(*addr), Rows: 2, Cols: 16, Contrast: byte(*contrast)})
		if err != nil {
			// The motor still runs without a display.
			logger.Warn("no LCD", zap.Error(err))
		} else {
			defer dev.Halt()
			lcd = dev
		}
	}

	tk := stepper.NewTicker(opts.Period)
	demo, err := stepper.New(coils, tk, lcd, &opts)
	if err != nil {
		return err
	}
	logger.Info("starting", zap.Stringer("demo", demo), zap.Stringer("coils", coils), zap.Duration("period", opts.Period))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tk.Run(ctx); !stepper.IsShutdown(err) {
			logger.Error("step timer", zap.Error(err))
			stop()
		}
	}()
	err = demo.Run(ctx)
	wg.Wait()
	// A tick in flight when Run returned may have closed switches again.
	if herr := coils.Halt(); herr != nil {
		logger.Error("releasing coils", zap.Error(herr))
	}
	if stepper.IsShutdown(err) {
		return nil
	}
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func openPins(names string) ([]gpio.PinIO, error) {
	var out []gpio.PinIO
	for _, name := range strings.Split(names, ",") {
		p := gpioreg.ByName(strings.TrimSpace(name))
		if p == nil {
			return nil, fmt.Errorf("no pin %q", name)
		}
		out = append(out, p)
	}
	if len(out) != len(hbridge.DefaultLayout) {
		return nil, fmt.Errorf("need %d pins, got %d", len(hbridge.DefaultLayout), len(out))
	}
	return out, nil
}

func simPins() []gpio.PinIO {
	out := make([]gpio.PinIO, 0, len(hbridge.DefaultLayout))
	for i, ch := range hbridge.DefaultLayout {
		out = append(out, &gpiotest.Pin{N: ch.String(), Num: i, L: gpio.Low})
	}
	return out
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepperdemo is a container for the stepper motor demonstration.
//
// hbridge switches the eight transistors of a dual H-bridge, stepper
// sequences and supervises the motor, st7032i drives the position LCD and
// console stands in for the hardware on a terminal. cmd/stepperdemo ties
// them together.
package stepperdemo

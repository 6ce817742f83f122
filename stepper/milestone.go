// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import "fmt"

// Action is what the foreground does when the motor reaches a milestone.
type Action uint8

const (
	// None keeps the motor running.
	None Action = iota
	// StopAndReport shows the position, dwells and resumes.
	StopAndReport
	// ReverseAndReport flips the rotation, then behaves as StopAndReport.
	ReverseAndReport
	// HomeAndReport is StopAndReport at step 0.
	HomeAndReport
)

var actionNames = [...]string{
	None:             "None",
	StopAndReport:    "StopAndReport",
	ReverseAndReport: "ReverseAndReport",
	HomeAndReport:    "HomeAndReport",
}

func (a Action) String() string {
	if int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
	return actionNames[a]
}

// reverseTurns is the number of quarter turns after which the motor heads
// back.
const reverseTurns = 10

// Milestones maps an absolute step count to an Action.
//
// With QuarterTurn = 200 half-steps (1.8° motor): home and 90° stop, 180°
// through 810° pass, 900° reverses.
type Milestones struct {
	QuarterTurn int32
}

// Classify returns the action for the absolute step count abs.
func (m Milestones) Classify(abs int32) Action {
	if abs < 0 {
		abs = -abs
	}
	if abs == 0 {
		return HomeAndReport
	}
	if m.QuarterTurn <= 0 || abs%m.QuarterTurn != 0 {
		return None
	}
	switch abs / m.QuarterTurn {
	case 1:
		return StopAndReport
	case reverseTurns:
		return ReverseAndReport
	default:
		return None
	}
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/display"
)

const (
	titleRow    = 1
	positionRow = 2
)

// FormatPosition renders a step count the way the status line shows it.
func FormatPosition(step int32) string {
	switch {
	case step == 0:
		return " HOME position. "
	case step > 0:
		return fmt.Sprintf("CW %5d pulses", step)
	default:
		return fmt.Sprintf("CCW %5d pulses", -int64(step))
	}
}

// Reporter writes status lines to a text display.
//
// Reporting is best effort: display errors are logged and dropped so that a
// failing bus never holds up the motor. A nil display is allowed.
type Reporter struct {
	d      display.TextDisplay
	logger *zap.Logger
	shown  map[int]string
}

// NewReporter returns a Reporter for d.
func NewReporter(d display.TextDisplay, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{d: d, logger: logger, shown: map[int]string{}}
}

// Title shows text on the first row.
func (r *Reporter) Title(text string) {
	r.line(titleRow, text)
}

// Position shows the step count on the second row.
func (r *Reporter) Position(step int32) {
	r.line(positionRow, FormatPosition(step))
}

// line writes text padded to the display width on the given row, counted
// from 1 regardless of the display's MinRow. Unchanged rows are not
// rewritten.
func (r *Reporter) line(row int, text string) {
	if r.d == nil {
		return
	}
	text = fmt.Sprintf("%-*s", r.d.Cols(), text)
	if r.shown[row] == text {
		return
	}
	if err := r.d.MoveTo(r.d.MinRow()+row-1, r.d.MinCol()); err != nil {
		r.logger.Debug("report dropped", zap.Int("row", row), zap.Error(err))
		return
	}
	if _, err := r.d.WriteString(text); err != nil {
		delete(r.shown, row)
		r.logger.Debug("report dropped", zap.Int("row", row), zap.Error(err))
		return
	}
	r.shown[row] = text
}

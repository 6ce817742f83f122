// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package st7032i

import "strings"

// Icon is a set of segment icons. The glass layout varies between modules;
// names below follow the common 2x16 panels.
type Icon uint16

const (
	IconAntenna Icon = 1 << (12 - iota)
	IconPhone
	IconSound
	IconInput
	IconUp
	IconDown
	IconLock
	IconMute
	IconBatteryLow
	IconBatteryMid
	IconBatteryHigh
	IconBatteryFrame
	IconMark

	IconNone Icon = 0
	IconAll  Icon = 1<<13 - 1
)

type iconSegment struct {
	name string
	addr byte
	bit  byte
}

// Ordered from IconAntenna down to IconMark.
var iconSegments = []iconSegment{
	{"Antenna", 0x00, 0x10},
	{"Phone", 0x02, 0x10},
	{"Sound", 0x04, 0x10},
	{"Input", 0x06, 0x10},
	{"Up", 0x07, 0x10},
	{"Down", 0x07, 0x08},
	{"Lock", 0x09, 0x10},
	{"Mute", 0x0b, 0x10},
	{"BatteryLow", 0x0d, 0x10},
	{"BatteryMid", 0x0d, 0x08},
	{"BatteryHigh", 0x0d, 0x04},
	{"BatteryFrame", 0x0d, 0x02},
	{"Mark", 0x0f, 0x10},
}

func (i Icon) String() string {
	if i == IconNone {
		return "None"
	}
	var names []string
	for ix, s := range iconSegments {
		if i&(IconAntenna>>ix) != 0 {
			names = append(names, s.name)
		}
	}
	return strings.Join(names, "|")
}

// ram returns the contents of the 16 icon RAM addresses for the set.
func (i Icon) ram() [16]byte {
	var ram [16]byte
	for ix, s := range iconSegments {
		if i&(IconAntenna>>ix) != 0 {
			ram[s.addr] |= s.bit
		}
	}
	return ram
}

// ShowIcons lights exactly the icons in set and clears the others.
func (dev *Dev) ShowIcons(set Icon) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for addr, v := range set.ram() {
		if err := dev.transmit(ctrlCommand, dev.functionSet(true), cmdIconAddress|byte(addr)); err != nil {
			return wrap(err)
		}
		if err := dev.transmit(ctrlData, v); err != nil {
			return wrap(err)
		}
	}
	return wrap(dev.transmit(ctrlCommand, dev.functionSet(false)))
}

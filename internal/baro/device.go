package baro

import (
	"errors"
	"time"
)

var (
	ErrNilDevice    = errors.New("baro: device is nil")
	ErrInvalidDelay = errors.New("baro: conversion delays must be > 0")
)

// Delays are the settling times a device needs between starting a conversion
// and reading its result.
type Delays struct {
	Temperature time.Duration
	Pressure    time.Duration
}

// Device is the hardware side of a pressure sensor: it starts conversions,
// reads the raw results back and compensates them.
//
// Read* return whatever the result register holds; calling them before the
// matching delay has elapsed yields an unsettled value, not an error.
type Device interface {
	StartTemperature() error
	ReadTemperature() (raw int32, err error)
	StartPressure() error
	ReadPressure() (raw int32, err error)

	// Compensate converts raw samples into pressure (Pa) and temperature
	// (hundredths of a degree C).
	Compensate(rawTemp, rawPress int32) (pressure, temperature int32)

	Delays() Delays
}

// AltitudeSource replaces the estimated altitude wholesale while active. It is
// the hook used for hardware-in-the-loop runs.
type AltitudeSource interface {
	// Altitude returns the override altitude in cm and whether the override
	// is currently active.
	Altitude() (cm int32, active bool)
}

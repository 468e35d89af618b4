// Package baro estimates altitude above a calibrated ground reference from a
// barometric pressure sensor.
//
// A Barometer owns all estimation state for one physical sensor: the two-phase
// acquisition state machine, the rank-3 median filter, the ground calibration
// accumulator and the last altitude estimate. It never blocks and never sleeps;
// Step reports how long the caller must wait before calling it again, and
// ComputeAltitude is meant to run once per control-loop tick.
//
// A Barometer is not safe for concurrent use.
package baro

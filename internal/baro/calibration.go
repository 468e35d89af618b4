package baro

// groundAveraging is the time constant, in cycles, of the ground pressure
// average. groundPressure holds the sum scaled by this factor.
const groundAveraging = 8

// BeginCalibration (re)arms ground calibration for the given number of
// ComputeAltitude ticks. Zero makes calibration complete immediately.
func (b *Barometer) BeginCalibration(cycles uint) {
	b.calibrationCycles = cycles
}

func (b *Barometer) IsCalibrationComplete() bool {
	return b.calibrationCycles == 0
}

// CalibrationCyclesRemaining returns how many ticks calibration still needs.
func (b *Barometer) CalibrationCyclesRemaining() uint { return b.calibrationCycles }

// GroundPressure returns the averaged ground pressure in Pa.
func (b *Barometer) GroundPressure() int32 {
	return int32(b.groundPressure / groundAveraging)
}

// GroundAltitude returns the altitude of the ground reference in cm above
// standard sea level.
func (b *Barometer) GroundAltitude() int32 { return b.groundAltitude }

// runCalibrationCycle folds the current pressure into the ground average with
// integer truncation, then refreshes the ground altitude from the partial
// average. The first few cycles therefore report a biased ground altitude;
// tuning downstream relies on that transient, so it is left as is.
func (b *Barometer) runCalibrationCycle() {
	if b.calibrationCycles == 0 {
		return
	}
	b.groundPressure -= b.groundPressure / groundAveraging
	b.groundPressure += int64(b.pressure)
	b.groundAltitude = int32(PressureToAltitude(float64(b.groundPressure / groundAveraging)))
	b.calibrationCycles--
}

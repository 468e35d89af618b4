package baro

import "math"

const (
	// SeaLevelPressure is the ISA standard pressure at sea level in Pa.
	SeaLevelPressure = 101325.0

	barometricExponent = 0.190295
	altitudeScaleCm    = 4433000.0
)

// PressureToAltitude converts absolute pressure in Pa to altitude above
// standard sea level in cm.
func PressureToAltitude(pressure float64) float64 {
	return (1.0 - math.Pow(pressure/SeaLevelPressure, barometricExponent)) * altitudeScaleCm
}

// AltitudeToPressure is the inverse of PressureToAltitude.
func AltitudeToPressure(cm float64) float64 {
	return SeaLevelPressure * math.Pow(1.0-cm/altitudeScaleCm, 1.0/barometricExponent)
}

// ComputeAltitude returns the altitude in cm relative to the ground reference.
// While calibration is in progress it consumes one calibration cycle and
// returns 0.
func (b *Barometer) ComputeAltitude() int32 {
	if !b.IsCalibrationComplete() {
		b.runCalibrationCycle()
		b.altitude = 0
		return 0
	}
	if b.override != nil {
		if cm, ok := b.override.Altitude(); ok {
			b.altitude = cm
			return cm
		}
	}
	alt := int32(math.Round(PressureToAltitude(float64(b.pressure))))
	b.altitude = alt - b.groundAltitude
	return b.altitude
}

// Altitude returns the value produced by the last ComputeAltitude call.
func (b *Barometer) Altitude() int32 { return b.altitude }

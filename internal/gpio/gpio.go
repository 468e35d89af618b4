// Package gpio reads digital input lines, such as a sensor's end-of-conversion
// pin, from the Linux GPIO character device.
package gpio

// Input is a requested input line.
type Input interface {
	// Value returns 1 when the line is active.
	Value() (int, error)
	Close() error
}

// OpenInput requests BCM pin as an input. consumer labels the request in
// gpioinfo output.
func OpenInput(pin int, consumer string) (Input, error) {
	return openInputFn(pin, consumer)
}

//go:build !linux

package gpio

import "github.com/pkg/errors"

func openInput(pin int, consumer string) (Input, error) {
	return nil, errors.New("gpio: unsupported on this platform")
}

var openInputFn = openInput

//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

func openInput(pin int, consumer string) (Input, error) {
	if pin <= 0 {
		return nil, errors.Errorf("gpio: invalid pin %d", pin)
	}
	if consumer == "" {
		consumer = "baroalt"
	}

	// On Pi, header lines are named "GPIO<n>". The chip that carries them
	// differs between kernels, so every chip is tried.
	lineName := fmt.Sprintf("GPIO%d", pin)
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithConsumer(consumer))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &cdevInput{chip: chip, line: line}, nil
	}
	return nil, errors.Errorf("gpio: line %q not found (or busy)", lineName)
}

var openInputFn = openInput

type cdevInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (in *cdevInput) Value() (int, error) {
	if in == nil || in.line == nil {
		return 0, errors.New("gpio: line not requested")
	}
	return in.line.Value()
}

func (in *cdevInput) Close() error {
	if in == nil || in.line == nil {
		return nil
	}
	err := in.line.Close()
	in.line = nil
	if in.chip != nil {
		_ = in.chip.Close()
		in.chip = nil
	}
	return err
}

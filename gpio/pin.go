// Package gpio drives digital output lines through the Linux sysfs GPIO
// interface (/sys/class/gpio).
package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrPinUnavailable is returned when a line cannot be exported or configured.
var ErrPinUnavailable = errors.New("gpio: pin unavailable")

// Output is a binary output line.
type Output interface {
	Set(high bool) error
}

// exportWait bounds how long Open waits for udev to create the line directory.
const exportWait = 500 * time.Millisecond

// Pin is one exported sysfs GPIO line configured as an output.
type Pin struct {
	number int
	dir    string
}

// Open exports line number under root and configures it as an output driven
// low. With activeLow set, a logical high drives the line to 0 V.
func Open(root string, number int, activeLow bool) (*Pin, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(number))

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := writeFile(filepath.Join(root, "export"), strconv.Itoa(number)); err != nil {
			return nil, fmt.Errorf("%w: export %d: %w", ErrPinUnavailable, number, err)
		}
		if err := waitFor(dir, exportWait); err != nil {
			return nil, fmt.Errorf("%w: export %d: %w", ErrPinUnavailable, number, err)
		}
	}

	p := &Pin{number: number, dir: dir}

	activeLowValue := "0"
	if activeLow {
		activeLowValue = "1"
	}
	if err := writeFile(filepath.Join(dir, "active_low"), activeLowValue); err != nil {
		return nil, fmt.Errorf("%w: gpio%d active_low: %w", ErrPinUnavailable, number, err)
	}
	// "low" sets direction and initial level in one write, so the line never glitches high.
	if err := writeFile(filepath.Join(dir, "direction"), "low"); err != nil {
		return nil, fmt.Errorf("%w: gpio%d direction: %w", ErrPinUnavailable, number, err)
	}
	return p, nil
}

// Number returns the line number.
func (p *Pin) Number() int { return p.number }

// Set drives the line high or low.
func (p *Pin) Set(high bool) error {
	value := "0"
	if high {
		value = "1"
	}
	if err := writeFile(filepath.Join(p.dir, "value"), value); err != nil {
		return fmt.Errorf("gpio%d set %s: %w", p.number, value, err)
	}
	return nil
}

// Get reads the current logical level.
func (p *Pin) Get() (bool, error) {
	raw, err := os.ReadFile(filepath.Join(p.dir, "value"))
	if err != nil {
		return false, fmt.Errorf("gpio%d get: %w", p.number, err)
	}
	return len(raw) > 0 && raw[0] == '1', nil
}

func writeFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func waitFor(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
}

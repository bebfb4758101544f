package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Source yields one complete Reading per call or fails without a partial result.
type Source interface {
	Read(ctx context.Context) (Reading, error)
}

// IIO channel files exposed by the Linux bme280 driver.
const (
	channelTemperature = "in_temp_input"             // milli °C
	channelHumidity    = "in_humidityrelative_input" // milli %RH
	channelPressure    = "in_pressure_input"         // kPa
)

// IIOSource reads a BME280-class sensor through the kernel's Industrial I/O
// sysfs interface, e.g. /sys/bus/iio/devices/iio:device0.
type IIOSource struct {
	dir string
}

// NewIIOSource returns a source for the IIO device directory dir.
func NewIIOSource(dir string) *IIOSource {
	return &IIOSource{dir: dir}
}

// Read samples temperature, humidity and pressure. Any channel failure fails
// the whole read. The driver converts each channel on its own, so the three
// values are milliseconds apart rather than one instant.
func (s *IIOSource) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	temp, err := s.channel(channelTemperature)
	if err != nil {
		return Reading{}, err
	}
	humi, err := s.channel(channelHumidity)
	if err != nil {
		return Reading{}, err
	}
	pres, err := s.channel(channelPressure)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Temperature: temp / 1000,
		Humidity:    humi / 1000,
		Pressure:    pres * 10,
	}, nil
}

func (s *IIOSource) channel(name string) (float64, error) {
	path := filepath.Join(s.dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSensorUnavailable, name, err)
	}
	return v, nil
}

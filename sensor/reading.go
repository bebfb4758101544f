// Package sensor produces environmental readings and their wire payload.
package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSensorUnavailable is returned when the bus or the device does not answer.
	ErrSensorUnavailable = errors.New("sensor: device unavailable")

	// ErrMalformedPayload is returned by DecodePayload for incomplete or invalid JSON.
	ErrMalformedPayload = errors.New("sensor: malformed payload")
)

// Reading is one sample of all three quantities. Values are in °C, %RH and hPa.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// payload is the wire form published on the telemetry topic.
type payload struct {
	Temp *float64 `json:"temp"`
	Humi *float64 `json:"humi"`
	Pres *float64 `json:"pres"`
}

// EncodePayload serializes r as {"temp":..,"humi":..,"pres":..}.
func EncodePayload(r Reading) ([]byte, error) {
	return json.Marshal(payload{
		Temp: &r.Temperature,
		Humi: &r.Humidity,
		Pres: &r.Pressure,
	})
}

// DecodePayload parses a telemetry payload. All three fields are required;
// unknown fields are ignored.
func DecodePayload(data []byte) (Reading, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if p.Temp == nil || p.Humi == nil || p.Pres == nil {
		return Reading{}, fmt.Errorf("%w: temp, humi and pres are required", ErrMalformedPayload)
	}
	return Reading{
		Temperature: *p.Temp,
		Humidity:    *p.Humi,
		Pressure:    *p.Pres,
	}, nil
}

// String formats r for logs.
func (r Reading) String() string {
	return fmt.Sprintf("%.2fC %.2f%% %.2fhPa", r.Temperature, r.Humidity, r.Pressure)
}

// Package validator rejects physically implausible readings before they are
// published or stored.
package validator

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/eddielth/edge-nodes/config"
)

// ErrOutOfRange is wrapped by every range violation.
var ErrOutOfRange = errors.New("validator: value out of range")

// Validator checks one property of a value.
type Validator interface {
	Validate(data interface{}) error
}

// RangeValidator checks that a numeric struct field lies in [Min, Max].
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate implements Validator.
func (rv *RangeValidator) Validate(data interface{}) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("validate %s: want struct, got %s", rv.Field, v.Kind())
	}

	field := v.FieldByName(rv.Field)
	if !field.IsValid() {
		return fmt.Errorf("validate %s: no such field", rv.Field)
	}

	var value float64
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		value = field.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		value = float64(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value = float64(field.Uint())
	default:
		return fmt.Errorf("validate %s: not numeric", rv.Field)
	}

	if math.IsNaN(value) || value < rv.Min || value > rv.Max {
		return fmt.Errorf("%w: %s = %g not in [%g, %g]", ErrOutOfRange, rv.Field, value, rv.Min, rv.Max)
	}
	return nil
}

// Chain runs validators in order and stops at the first failure.
type Chain []Validator

// Validate implements Validator.
func (c Chain) Validate(data interface{}) error {
	for _, v := range c {
		if err := v.Validate(data); err != nil {
			return err
		}
	}
	return nil
}

// ReadingRules returns range checks for sensor.Reading built from limits.
// A range with Min == Max == 0 is treated as unset and skipped.
func ReadingRules(limits config.LimitsConfig) Chain {
	var chain Chain
	for _, r := range []struct {
		field string
		rng   config.RangeConfig
	}{
		{"Temperature", limits.Temperature},
		{"Humidity", limits.Humidity},
		{"Pressure", limits.Pressure},
	} {
		if r.rng.Min == 0 && r.rng.Max == 0 {
			continue
		}
		chain = append(chain, &RangeValidator{Field: r.field, Min: r.rng.Min, Max: r.rng.Max})
	}
	return chain
}

// Package condition defines the closed set of equipment condition classes
// and the alert signal each one maps to.
//
// The class order is part of every trained model: index 0 is Normal,
// 1 is EarlyFault, 2 is Failure. Adding a class changes the model format.
package condition

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Class is an equipment condition state.
type Class int

const (
	// Normal is steady, low-noise operation.
	Normal Class = iota

	// EarlyFault shows intermittent fault components on top of normal
	// operation (e.g. early bearing wear).
	EarlyFault

	// Failure is unstable, noisy operation with strong fault components.
	Failure

	numClasses
)

// All returns every class in index order.
func All() []Class {
	return []Class{Normal, EarlyFault, Failure}
}

// Count is the number of classes.
const Count = int(numClasses)

func (c Class) String() string {
	switch c {
	case Normal:
		return "normal"
	case EarlyFault:
		return "early_fault"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	return c >= Normal && c < numClasses
}

// Parse converts a label ("normal", "early_fault", "failure") to a Class.
func Parse(s string) (Class, error) {
	switch s {
	case "normal":
		return Normal, nil
	case "early_fault":
		return EarlyFault, nil
	case "failure":
		return Failure, nil
	}
	return 0, fmt.Errorf("condition: unknown class %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("condition: invalid class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (c Class) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !c.Valid() {
		return fmt.Errorf("condition: invalid class %d", int(c))
	}
	return enc.EncodeString(c.String())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (c *Class) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return c.UnmarshalText([]byte(s))
}

// Signal is the downstream alert colour for a condition.
type Signal string

const (
	SignalGreen  Signal = "green"
	SignalYellow Signal = "yellow"
	SignalRed    Signal = "red"
)

// signals is indexed by Class. A class added without an entry reads as the
// empty Signal, which the condition tests reject.
var signals = [numClasses]Signal{
	Normal:     SignalGreen,
	EarlyFault: SignalYellow,
	Failure:    SignalRed,
}

// Signal returns the alert colour for c.
// It panics if c is not a valid class.
func (c Class) Signal() Signal {
	if !c.Valid() {
		panic(fmt.Sprintf("condition: no signal for %v", c))
	}
	return signals[c]
}

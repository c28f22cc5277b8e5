package cycle

import (
	"errors"
	"fmt"
)

var (
	// ErrTickTimeout indicates the cycle tick did not arrive in time.
	ErrTickTimeout = errors.New("cycle tick timeout")
	// ErrInvalidPeriod indicates a period below 1.
	ErrInvalidPeriod = errors.New("period must be at least 1")
	// ErrNoSuchNode indicates a slot or node ID not in the node table.
	ErrNoSuchNode = errors.New("no such node")
	// ErrShortImage indicates a process image smaller than the node table.
	ErrShortImage = errors.New("process image too small")
)

// Direction is the direction of an image exchange.
type Direction int

// Exchange directions.
const (
	// Outbound pulls received inputs out of the stack.
	Outbound Direction = iota
	// Inbound pushes outputs into the stack.
	Inbound
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// ExchangeError indicates a failed image exchange.
type ExchangeError struct {
	Dir Direction
	Err error
}

// Error implements error.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s image exchange: %v", e.Dir, e.Err)
}

// Unwrap returns the stack error.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// ConfigError indicates an invalid controller configuration.
type ConfigError struct {
	Field string
	Err   error
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

// Unwrap returns the cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

package kasa

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection marks failures to reach or talk to the device:
	// dial errors, timeouts, broken frames, unexpected replies.
	ErrConnection = errors.New("connection failed")
	// ErrCommand marks a command the device answered with a non-zero err_code.
	ErrCommand = errors.New("command rejected")

	// errHostRequired is returned when Connect is called without a host.
	errHostRequired = errors.New("host must be provided")
	// errClosed is returned when a closed Device is used.
	errClosed = errors.New("device is closed")
)

// DeviceError is a method reply with a non-zero err_code.
type DeviceError struct {
	// Method is the protocol method that failed, e.g. "set_relay_state".
	Method string
	// Code is the err_code reported by the device.
	Code int
	// Message is the optional err_msg reported by the device.
	Message string
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: device returned err_code %d", e.Method, e.Code)
	}

	return fmt.Sprintf("%s: device returned err_code %d: %s", e.Method, e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrCommand.
func (e *DeviceError) Unwrap() error {
	return ErrCommand
}

// checkResult converts a method result into a DeviceError when it failed.
func checkResult(method string, result Result) error {
	if result.ErrCode == 0 {
		return nil
	}

	return &DeviceError{
		Method:  method,
		Code:    result.ErrCode,
		Message: result.ErrMsg,
	}
}

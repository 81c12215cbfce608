package engine

import (
	"errors"
	"strings"
)

var (
	ErrOutOfOrderFrame    = errors.New("frame sequence is not after the last accepted frame")
	ErrDimensionMismatch  = errors.New("frame dimensions differ from the established shape")
	ErrInsufficientFrames = errors.New("at least two frames are required")
	ErrInvalidCalibration = errors.New("invalid calibration")
	ErrClosed             = errors.New("engine closed")
)

// CalibrationError lists every constraint a calibration violates.
type CalibrationError struct {
	Violations []string
}

func (e *CalibrationError) Error() string {
	return ErrInvalidCalibration.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *CalibrationError) Unwrap() error {
	return ErrInvalidCalibration
}

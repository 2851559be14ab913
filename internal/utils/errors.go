package utils

import "fmt"

// ImageProcessingError represents errors that can occur while loading or converting images.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// InvalidConfigurationError reports a stereo parameter that cannot be used. It is returned before any
// computation starts.
type InvalidConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s = %v (%s)", e.Field, e.Value, e.Reason)
}

// InvalidConfig is shorthand for building an InvalidConfigurationError.
func InvalidConfig(field string, value any, reason string) error {
	return &InvalidConfigurationError{Field: field, Value: value, Reason: reason}
}

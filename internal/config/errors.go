package config

import "errors"

var (
	// ErrConfigNotFound is returned when no configuration file exists in
	// the extension directory.
	ErrConfigNotFound = errors.New("no comfy-test configuration file found")

	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrUnknownPlatform = errors.New("unknown platform")
)

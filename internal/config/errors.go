package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a missing or malformed configuration. It is fatal
// and reported before any process group is formed.
var ErrConfiguration = errors.New("configuration error")

// Errorf returns an error wrapping ErrConfiguration.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

package config

import "errors"

// ErrInvalidConfig wraps every validation failure Config.Validate returns.
var ErrInvalidConfig = errors.New("invalid config")

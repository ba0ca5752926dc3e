package tool

import "errors"

// ErrToolNotFound is returned by Validate when name isn't in the registry.
var ErrToolNotFound = errors.New("tool not found")

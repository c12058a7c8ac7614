package powerstats

import "errors"

var (
	// ErrNoBackend means neither the system service nor the vendor HAL
	// could be reached on the hub.
	ErrNoBackend = errors.New("powerstats: no backend available")

	// ErrNotSupported marks operations the selected backend has no
	// surface for, e.g. state residency on the system service.
	ErrNotSupported = errors.New("powerstats: not supported by backend")
)

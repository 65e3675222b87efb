//go:build windows

package daemonize

import "errors"

// Daemonize is unsupported on Windows: there is no controlling
// terminal / session leadership concept to detach from the way Unix
// has one. Windows callers are expected to run with --fg, or under the
// platform's own service manager (out of scope here).
func Daemonize() error {
	return errors.New("daemonize: background mode is not supported on Windows, use --fg")
}

// Package daemonize supplements the distilled spec's "daemonization...
// (out of scope)" note: the original implementation backgrounds itself
// with glibc daemon(3). There is no Go equivalent of fork(2), so the
// same effect is reproduced by re-executing the current binary
// detached from its controlling terminal in a new session, grounded on
// _examples/rescale-labs-Rescale_Interlink/internal/daemon/daemonize_unix.go.
package daemonize

import "os"

// childEnvVar marks a process as the already-detached daemon child, so
// a second re-exec never happens.
const childEnvVar = "DBUSDL_DAEMON_CHILD"

// IsChild reports whether this process is the detached daemon child,
// i.e. whether DBUSDL_DAEMON_CHILD is set to "1". A process launched
// with --fg is not marked this way. Callers should proceed to run the
// daemon in-process when this is true.
func IsChild() bool {
	return os.Getenv(childEnvVar) == "1"
}

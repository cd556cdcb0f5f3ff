//go:build linux

package supervisor

import "syscall"

// newSysProcAttr ties each worker's lifetime to the supervisor: Pdeathsig
// delivers SIGTERM to the child if the parent dies without cleanup, and
// Setpgid puts the child in its own process group so the supervisor can
// signal the whole group (the worker plus anything it spawns) at once.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
		Setpgid:   true,
	}
}

//go:build !linux

package supervisor

import "syscall"

// newSysProcAttr on non-Linux platforms still isolates the child into its
// own process group; Pdeathsig has no portable equivalent outside Linux,
// so parent-death cleanup there relies on the signal-forwarding path only.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package transport

import "syscall"

// reuseControl is a no-op where address reuse cannot be configured.
func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}

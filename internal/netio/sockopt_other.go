//go:build !(linux || freebsd || openbsd || darwin || netbsd || dragonfly)
// +build !linux,!freebsd,!openbsd,!darwin,!netbsd,!dragonfly

package netio

import "net"

// tuneSocket is a no-op on platforms without the unix socket option surface.
func tuneSocket(udp *net.UDPConn) {}

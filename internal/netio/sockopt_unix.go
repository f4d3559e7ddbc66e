//go:build linux || freebsd || openbsd || darwin || netbsd || dragonfly
// +build linux freebsd openbsd darwin netbsd dragonfly

package netio

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/naatebarber/nbmq/internal/frame"
)

// socketBufferBytes widens the kernel socket buffers enough to absorb a
// full tick's worth of in-flight frames without the kernel dropping
// datagrams before nbmq's own queues ever see them.
const socketBufferBytes = frame.MaxFrameSize * 64

// tuneSocket sets SO_REUSEADDR and widens the receive/send buffers on unix
// platforms. Best effort: a failure here doesn't fail bind/connect, it just
// leaves the kernel defaults in place.
func tuneSocket(udp *net.UDPConn) {
	rawConn, err := udp.SyscallConn()
	if err != nil {
		return
	}

	_ = rawConn.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferBytes)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferBytes)
	})
}

//go:build unix

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets a restarted transmitter rebind its control port while the
// old socket is still being torn down.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return fmt.Errorf("transport: control: %w", err)
	}
	if optErr != nil {
		return fmt.Errorf("transport: setsockopt SO_REUSEADDR: %w", optErr)
	}
	return nil
}

// sendBuffer sizes SO_SNDBUF on the data socket. bytes <= 0 keeps the OS
// default.
func sendBuffer(bytes int) func(network, address string, c syscall.RawConn) error {
	if bytes <= 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
		})
		if err != nil {
			return fmt.Errorf("transport: control: %w", err)
		}
		if optErr != nil {
			return fmt.Errorf("transport: setsockopt SO_SNDBUF: %w", optErr)
		}
		return nil
	}
}

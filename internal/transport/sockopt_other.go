//go:build !unix

package transport

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}

func sendBuffer(bytes int) func(network, address string, c syscall.RawConn) error {
	return nil
}

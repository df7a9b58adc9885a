package transport

import (
	"errors"
	"net"
	"net/netip"
)

var (
	errEmpty       = errors.New("empty address")
	errNoPort      = errors.New("port 0 is not a destination")
	errUnspecified = errors.New("unspecified address is not a destination")
)

// ParseEndpoint accepts "ip:port" or "[ip6]:port" literals and falls back to
// resolving "host:port".
func ParseEndpoint(s string) (*net.UDPAddr, error) {
	if s == "" {
		return nil, errEmpty
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return net.UDPAddrFromAddrPort(ap), nil
	}
	return net.ResolveUDPAddr("udp", s)
}

// parseDestination is ParseEndpoint plus the checks that only make sense for
// the remote end: a real port and a specified address.
func parseDestination(s string) (*net.UDPAddr, error) {
	addr, err := ParseEndpoint(s)
	if err != nil {
		return nil, err
	}
	if addr.Port == 0 {
		return nil, errNoPort
	}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		return nil, errUnspecified
	}
	return addr, nil
}

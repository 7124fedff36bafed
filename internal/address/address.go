package address

import (
	"net"
	"time"
)

const (
	// Loopback is returned whenever the outbound address cannot be determined.
	Loopback = "127.0.0.1"
	// DefaultProbeTarget is only used to make the OS pick an outbound interface;
	// UDP "connect" sends no packets.
	DefaultProbeTarget = "8.8.8.8:80"
)

// DialFunc matches net.DialTimeout so tests can replace the socket layer.
type DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

// Resolver determines the local IP address external clients can use to reach
// this machine.
type Resolver struct {
	Target string
	Dial   DialFunc
}

// New returns a Resolver probing target. An empty target uses DefaultProbeTarget.
func New(target string) *Resolver {
	if target == "" {
		target = DefaultProbeTarget
	}
	return &Resolver{Target: target, Dial: net.DialTimeout}
}

// Resolve returns the locally bound address of a connectionless socket
// "connected" to the probe target. It never fails: any error yields Loopback.
func (r *Resolver) Resolve() string {
	target := r.Target
	if target == "" {
		target = DefaultProbeTarget
	}
	dial := r.Dial
	if dial == nil {
		dial = net.DialTimeout
	}
	conn, err := dial("udp", target, time.Second)
	if err != nil || conn == nil {
		return Loopback
	}
	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr == nil || addr.IP == nil || addr.IP.IsUnspecified() {
		return Loopback
	}
	return addr.IP.String()
}

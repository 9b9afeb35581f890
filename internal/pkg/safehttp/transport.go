// Package safehttp provides an HTTP transport that refuses to connect to
// private, loopback and link-local addresses.
package safehttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DialTimeout bounds connection establishment for guarded transports.
const DialTimeout = 5 * time.Second

// CheckIP returns an error when ip is loopback, private or link-local.
func CheckIP(ip net.IP) error {
	if ip == nil {
		return fmt.Errorf("invalid remote IP")
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("access to private IP %s is denied", ip)
	}
	return nil
}

// NewTransport returns a clone of http.DefaultTransport whose dialer checks
// the resolved remote address of every connection.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: DialTimeout}
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if err := CheckIP(net.ParseIP(host)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}
	return t
}

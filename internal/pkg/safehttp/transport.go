// Package safehttp provides an HTTP transport that refuses to dial private
// address ranges.
package safehttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrPrivateAddress is returned when a dial targets a loopback, private,
// link-local or unspecified address.
var ErrPrivateAddress = errors.New("private address denied")

// NewTransport returns a transport whose dialer checks the resolved address
// before connecting, so a hostname that resolves to an internal IP is
// rejected as well.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			return checkAddress(address)
		},
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}

// NewClient returns a client using NewTransport.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: NewTransport()}
}

func checkAddress(address string) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("parse dial address %q: %w", address, err)
	}
	ip := ap.Addr().Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
	}
	return nil
}

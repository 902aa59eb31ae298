// Package static resolves IP locations from a fixed CIDR table.
package static

import (
	"context"
	"fmt"
	"net/netip"
	"sort"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// Name identifies this resolver in logs and metrics.
const Name = "static"

// Network pins every address in CIDR to one location.
type Network struct {
	CIDR      string
	Latitude  float64
	Longitude float64
}

type entry struct {
	prefix netip.Prefix
	geo    domain.GeoPayload
}

// Resolver answers from the most specific matching network.
type Resolver struct {
	entries []entry
}

// New parses networks. Bare addresses are treated as single-host prefixes.
func New(networks []Network) (*Resolver, error) {
	r := &Resolver{entries: make([]entry, 0, len(networks))}
	for _, n := range networks {
		p, err := parsePrefix(n.CIDR)
		if err != nil {
			return nil, fmt.Errorf("geo network %q: %w", n.CIDR, err)
		}
		if n.Latitude < -90 || n.Latitude > 90 || n.Longitude < -180 || n.Longitude > 180 {
			return nil, fmt.Errorf("geo network %q: coordinates out of range", n.CIDR)
		}
		r.entries = append(r.entries, entry{
			prefix: p,
			geo:    domain.GeoPayload{Latitude: n.Latitude, Longitude: n.Longitude},
		})
	}
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].prefix.Bits() > r.entries[j].prefix.Bits()
	})
	return r, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (r *Resolver) Name() string { return Name }

// Lookup returns the location of the longest prefix containing ip.
func (r *Resolver) Lookup(_ context.Context, ip string) (*domain.GeoPayload, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, domain.ErrLocationUnknown
	}
	addr = addr.Unmap()
	for _, e := range r.entries {
		if e.prefix.Contains(addr) {
			geo := e.geo
			return &geo, nil
		}
	}
	return nil, domain.ErrLocationUnknown
}

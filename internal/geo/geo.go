// Package geo maps client IP addresses to ISO country codes.
package geo

import "net/netip"

type Lookup interface {
	// Country returns the country code for ip, or false when unknown.
	Country(ip string) (string, bool)
}

type entry struct {
	prefix  netip.Prefix
	country string
}

// Static resolves addresses against a fixed prefix table.
type Static struct {
	entries []entry
}

// NewStatic builds a table from CIDR → country pairs. Invalid prefixes are
// skipped.
func NewStatic(table map[string]string) *Static {
	s := &Static{}
	for cidr, country := range table {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		s.entries = append(s.entries, entry{prefix: p.Masked(), country: country})
	}
	return s
}

// Default is the stub table over the documentation ranges.
func Default() *Static {
	return NewStatic(map[string]string{
		"192.0.2.0/24":    "US",
		"198.51.100.0/24": "GB",
		"203.0.113.0/24":  "JP",
	})
}

func (s *Static) Country(ip string) (string, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	best := -1
	country := ""
	for _, e := range s.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			country = e.country
		}
	}
	return country, best >= 0
}

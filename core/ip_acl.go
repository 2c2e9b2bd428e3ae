package core

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPAccessControl restricts administrative endpoints to a set of client
// networks. A nil *IPAccessControl permits every address.
type IPAccessControl struct {
	allow []netip.Prefix
	deny  []netip.Prefix
}

// NewIPAccessControl parses allow and deny lists of CIDRs or bare IPs. It
// returns nil when both lists are empty.
func NewIPAccessControl(allowCIDRs, denyCIDRs []string) (*IPAccessControl, error) {
	allow, err := parsePrefixes(allowCIDRs)
	if err != nil {
		return nil, fmt.Errorf("invalid allow list: %w", err)
	}
	deny, err := parsePrefixes(denyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("invalid deny list: %w", err)
	}
	if len(allow) == 0 && len(deny) == 0 {
		return nil, nil
	}
	return &IPAccessControl{allow: allow, deny: deny}, nil
}

// AllowsString is Allows for a textual address, as reported by gin's ClientIP.
func (a *IPAccessControl) AllowsString(raw string) bool {
	if a == nil {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return a.Allows(addr)
}

// Allows reports whether addr may call; deny entries win over allow entries.
func (a *IPAccessControl) Allows(addr netip.Addr) bool {
	if a == nil {
		return true
	}
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()

	for _, p := range a.deny {
		if p.Contains(addr) {
			return false
		}
	}
	if len(a.allow) == 0 {
		return true
	}
	for _, p := range a.allow {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parsePrefixes(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", raw)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

package network

import (
	"fmt"
	"net"
)

// InventoryConfig selects the egress IP set: either a manually
// configured list or auto-discovery from local interfaces, plus a
// blacklist and a loopback allowance.
type InventoryConfig struct {
	EnableMultipleIP bool
	ManualIPs        []string
	Blacklist        []string
	AllowLoopback    bool
}

// DiscoverSlots builds the slot set an Allocator is constructed over.
// Interface discovery or manual-IP parse errors are fatal at init; an
// empty resulting slot set is also fatal, since the allocator has
// nothing to rotate over.
func DiscoverSlots(cfg InventoryConfig) ([]*Slot, error) {
	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, ip := range cfg.Blacklist {
		blacklist[ip] = struct{}{}
	}

	var ips []net.IP
	if len(cfg.ManualIPs) > 0 {
		for _, raw := range cfg.ManualIPs {
			parsed := net.ParseIP(raw)
			if parsed == nil {
				return nil, fmt.Errorf("network: invalid manual IP %q", raw)
			}
			ips = append(ips, parsed)
		}
	} else if cfg.EnableMultipleIP {
		discovered, err := discoverInterfaceIPs(cfg.AllowLoopback)
		if err != nil {
			return nil, fmt.Errorf("network: interface discovery: %w", err)
		}
		ips = discovered
	} else {
		// Single-IP mode: the outbound source address the OS
		// chooses is left to the default route, represented here by
		// the unspecified address as a single rotation-of-one slot.
		ips = []net.IP{net.IPv4zero}
	}

	var slots []*Slot
	for _, ip := range ips {
		if _, blocked := blacklist[ip.String()]; blocked {
			continue
		}
		slots = append(slots, NewSlot(ip, SlotEphemeral))
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("network: no eligible ip slot discovered at init")
	}
	return slots, nil
}

func discoverInterfaceIPs(allowLoopback bool) ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.To4() == nil {
			continue
		}
		if ip.IsLoopback() && !allowLoopback {
			continue
		}
		out = append(out, ip)
	}
	return out, nil
}

package ipam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"
)

// ErrExhausted is returned when every host address in a prefix is in use.
var ErrExhausted = errors.New("address pool exhausted")

// AllocateHost returns the lowest host address in network that is not in inUse.
//
// Hosts are enumerated in ascending order with the network and broadcast
// addresses excluded (a /31 yields both addresses, a /32 its single address).
// The scan is linear in the pool size.
func AllocateHost(network netip.Prefix, inUse map[netip.Addr]struct{}) (netip.Addr, error) {
	first, last, err := HostRange4(network)
	if err != nil {
		return netip.Addr{}, err
	}

	for curr := first; ; curr++ {
		addr := Uint32ToAddr(curr)
		if _, taken := inUse[addr]; !taken {
			return addr, nil
		}
		if curr == last {
			break
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: no free host address in %s", ErrExhausted, network.Masked())
}

// HostRange4 returns the first and last assignable host addresses of an IPv4
// prefix as integers.
func HostRange4(network netip.Prefix) (uint32, uint32, error) {
	if !network.IsValid() {
		return 0, 0, fmt.Errorf("network cidr is required")
	}
	if !network.Addr().Is4() {
		return 0, 0, fmt.Errorf("only ipv4 network cidr is supported")
	}
	start, end, err := PrefixRange4(network)
	if err != nil {
		return 0, 0, err
	}
	if network.Bits() >= 31 {
		return start, end, nil
	}
	return start + 1, end - 1, nil
}

// PoolSize returns the number of assignable host addresses in network.
func PoolSize(network netip.Prefix) (uint64, error) {
	first, last, err := HostRange4(network)
	if err != nil {
		return 0, err
	}
	return uint64(last-first) + 1, nil
}

func PrefixRange4(p netip.Prefix) (uint32, uint32, error) {
	p = p.Masked()
	if !p.Addr().Is4() {
		return 0, 0, fmt.Errorf("prefix %s is not ipv4", p)
	}
	b := p.Addr().As4()
	start := binary.BigEndian.Uint32(b[:])
	hostBits := 32 - p.Bits()
	if hostBits <= 0 {
		return start, start, nil
	}
	if hostBits >= 32 {
		return 0, math.MaxUint32, nil
	}
	size := uint32(1) << hostBits
	return start, start + size - 1, nil
}

func Uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

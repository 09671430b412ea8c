package ipam

import (
	"net/netip"
	"testing"
)

func FuzzAllocateHost(f *testing.F) {
	f.Add("10.77.0.0/24", uint8(3))
	f.Add("10.77.0.0/16", uint8(0))
	f.Add("192.168.1.0/30", uint8(2))
	f.Add("10.0.0.0/31", uint8(1))

	f.Fuzz(func(t *testing.T, networkStr string, taken uint8) {
		network, err := netip.ParsePrefix(networkStr)
		if err != nil || !network.Addr().Is4() {
			return
		}

		first, last, err := HostRange4(network)
		if err != nil {
			t.Fatalf("HostRange4(%s) error = %v", network, err)
		}

		inUse := make(map[netip.Addr]struct{})
		curr := first
		for i := 0; i < int(taken); i++ {
			inUse[Uint32ToAddr(curr)] = struct{}{}
			if curr == last {
				break
			}
			curr++
		}

		got, err := AllocateHost(network, inUse)
		if err != nil {
			if uint64(len(inUse)) < uint64(last-first)+1 {
				t.Fatalf("AllocateHost(%s) exhausted with only %d of pool in use", network, len(inUse))
			}
			return
		}

		if !network.Masked().Contains(got) {
			t.Errorf("result %v not within %v", got, network)
		}
		if _, dup := inUse[got]; dup {
			t.Errorf("result %v is already in use", got)
		}
	})
}

package enroll

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"wgenroll/pkg/ipam"
)

// allocateOverlayIP returns the first host in the subnet that is neither the
// server address nor held by an active peer. The in-use set is rebuilt from
// live peer state on every call, so revoked addresses come back without a
// free list.
func (e *Engine) allocateOverlayIP(ctx context.Context, tx Tx) (netip.Addr, error) {
	peers, err := tx.ListPeers(ctx)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list peers: %w", err)
	}

	inUse := make(map[netip.Addr]struct{}, len(peers)+1)
	inUse[e.cfg.ServerIP] = struct{}{}
	for _, p := range peers {
		if !p.Active() {
			continue
		}
		addr, pErr := netip.ParseAddr(p.OverlayIP)
		if pErr != nil {
			e.log.Warn("skip peer with unparsable overlay ip", "peer_id", p.ID, "overlay_ip", p.OverlayIP)
			continue
		}
		inUse[addr] = struct{}{}
	}

	addr, err := ipam.AllocateHost(e.cfg.Subnet, inUse)
	if err != nil {
		if errors.Is(err, ipam.ErrExhausted) {
			return netip.Addr{}, fmt.Errorf("%w: %s has no free host address", ErrPoolExhausted, e.cfg.Subnet)
		}
		return netip.Addr{}, fmt.Errorf("allocate overlay ip: %w", err)
	}
	return addr, nil
}

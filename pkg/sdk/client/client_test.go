package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"wgenroll/internal/adapter/memory"
	"wgenroll/internal/daemon/api"
	"wgenroll/internal/daemon/server"
	"wgenroll/internal/enroll"
)

func startDaemon(t *testing.T) func(id Identity) *Client {
	t.Helper()
	cfg := enroll.Config{
		Subnet:          netip.MustParsePrefix("10.77.0.0/16"),
		ServerIP:        netip.MustParseAddr("10.77.0.10"),
		ServerPublicKey: "SERVERPUBKEYbase64AAAAAAAAAAAAAAAAAAAAAAAAA=",
		ServerEndpoint:  "vpn.example.com:51820",
		Keepalive:       25,
	}
	engine, err := enroll.New(context.Background(), cfg, memory.New(0))
	if err != nil {
		t.Fatalf("enroll.New: %v", err)
	}
	srv := server.New(engine, server.Options{
		LocalNetworks: []string{"bufconn"},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).GRPCServer()

	lis := bufconn.Listen(1024 * 1024)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	return func(id Identity) *Client {
		c, err := NewWithDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}, id)
		if err != nil {
			t.Fatalf("NewWithDialer: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
}

func TestClient_RoundTrip(t *testing.T) {
	t.Parallel()
	connect := startDaemon(t)
	ctx := context.Background()
	admin := connect(Identity{UserID: "ops", Role: "admin"})
	carol := connect(Identity{UserID: "carol"})

	inv, err := admin.CreateInvite(ctx, "carol", "", 2*time.Minute)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if got := inv.ExpiresAt.Sub(inv.CreatedAt); got != 2*time.Minute {
		t.Fatalf("ttl = %v, want 2m", got)
	}

	res, err := carol.Enroll(ctx, inv.Code, enroll.DeviceIdentity{DeviceID: "desktop"}, "CAROLKEY=")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	_, err = carol.Enroll(ctx, inv.Code, enroll.DeviceIdentity{DeviceID: "desktop"}, "CAROLKEY=")
	if !errors.Is(err, enroll.ErrInvalidInvite) {
		t.Fatalf("reusing invite: expected ErrInvalidInvite, got %v", err)
	}

	self, err := carol.SelfPeer(ctx)
	if err != nil {
		t.Fatalf("SelfPeer: %v", err)
	}
	if self.ID != res.PeerID {
		t.Fatalf("self peer = %s, want %s", self.ID, res.PeerID)
	}

	allowed := []string{"10.77.0.0/16", "192.168.10.0/24"}
	if _, err := admin.PatchPeer(ctx, res.PeerID, enroll.PeerPatch{AllowedIPs: &allowed}); err != nil {
		t.Fatalf("PatchPeer: %v", err)
	}
	peers, err := admin.ListPeers(ctx)
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 1 || len(peers[0].AllowedIPs) != 2 {
		t.Fatalf("unexpected peers %+v", peers)
	}

	if _, err := admin.RevokePeer(ctx, res.PeerID); err != nil {
		t.Fatalf("RevokePeer: %v", err)
	}
	st, err := carol.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Connected {
		t.Fatalf("expected disconnected after revoke, got %+v", st)
	}
	if _, err := carol.SelfPeer(ctx); !errors.Is(err, enroll.ErrNotFound) {
		t.Fatalf("SelfPeer after revoke: expected ErrNotFound, got %v", err)
	}

	events, err := admin.ListAudit(ctx, 2)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(events) != 2 || events[0].Action != enroll.ActionPeerRevoke {
		t.Fatalf("unexpected audit events %+v", events)
	}
}

func TestClient_ErrorsMatchEngineValues(t *testing.T) {
	t.Parallel()
	connect := startDaemon(t)
	ctx := context.Background()
	admin := connect(Identity{UserID: "ops", Role: "owner"})
	member := connect(Identity{UserID: "dave", Role: "member"})
	anonymous := connect(Identity{})

	if _, err := member.ListPeers(ctx); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("member ListPeers: expected ErrAdminRequired, got %v", err)
	}
	if _, err := anonymous.Status(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous Status: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := admin.RevokePeer(ctx, "wg_nope"); !errors.Is(err, enroll.ErrNotFound) {
		t.Fatalf("RevokePeer: expected ErrNotFound, got %v", err)
	}
	bad := []string{"300.1.1.1/8"}
	if _, err := admin.PatchPeer(ctx, "wg_nope", enroll.PeerPatch{AllowedIPs: &bad}); !errors.Is(err, enroll.ErrInvalidCIDR) {
		t.Fatalf("PatchPeer: expected ErrInvalidCIDR, got %v", err)
	}

	_, err := admin.CreateInvite(ctx, "", "", 0)
	var verr *enroll.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("CreateInvite without user: expected ValidationError, got %v", err)
	}
	if verr.Field != "user_id" {
		t.Fatalf("field = %q, want user_id", verr.Field)
	}

	inv, err := admin.CreateInvite(ctx, "dave", "phone", 0)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if _, err := member.Enroll(ctx, inv.Code, enroll.DeviceIdentity{DeviceID: "laptop"}, "K="); !errors.Is(err, enroll.ErrDeviceMismatch) {
		t.Fatalf("Enroll: expected ErrDeviceMismatch, got %v", err)
	}
	if _, err := member.Enroll(ctx, inv.Code, enroll.DeviceIdentity{DeviceID: "phone"}, ""); !errors.Is(err, enroll.ErrMissingPublicKey) {
		t.Fatalf("Enroll: expected ErrMissingPublicKey, got %v", err)
	}
}

func TestGRPCErr(t *testing.T) {
	t.Parallel()

	if grpcErr(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	plain := errors.New("not a status")
	if got := grpcErr(plain); got != plain {
		t.Fatalf("non-status error changed: %v", got)
	}

	st, err := status.New(codes.ResourceExhausted, "overlay address pool exhausted").WithDetails(
		&errdetails.ErrorInfo{Reason: api.ReasonPoolExhausted, Domain: api.ErrorDomain},
	)
	if err != nil {
		t.Fatalf("WithDetails: %v", err)
	}
	got := grpcErr(st.Err())
	if !errors.Is(got, enroll.ErrPoolExhausted) || got.Error() != "overlay address pool exhausted" {
		t.Fatalf("unexpected mapping %v", got)
	}

	foreign, err := status.New(codes.PermissionDenied, "nope").WithDetails(
		&errdetails.ErrorInfo{Reason: api.ReasonInvalidInvite, Domain: "elsewhere"},
	)
	if err != nil {
		t.Fatalf("WithDetails: %v", err)
	}
	if errors.Is(grpcErr(foreign.Err()), enroll.ErrInvalidInvite) {
		t.Fatal("reasons from other domains must be ignored")
	}

	if !errors.Is(grpcErr(status.Error(codes.Unavailable, "connection refused")), ErrDaemonUnavailable) {
		t.Fatal("expected ErrDaemonUnavailable")
	}
}

// Package client is the Go SDK for the enrollment daemon.
package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"wgenroll/internal/daemon/api"
	"wgenroll/internal/enroll"
)

// Identity is asserted on every call through request metadata. The daemon
// trusts it as given, so it must come from a trusted front end or a local user.
type Identity struct {
	UserID string
	Role   string
}

type Client struct {
	conn *grpc.ClientConn
	rpc  *api.EnrollmentClient
}

// New dials target, which is either a grpc target such as unix:///run/x.sock
// or a host:port.
func New(target string, id Identity) (*Client, error) {
	conn, err := grpc.NewClient(target, dialOptions(id)...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", target, err)
	}
	return &Client{conn: conn, rpc: api.NewEnrollmentClient(conn)}, nil
}

func NewUnix(socketPath string, id Identity) (*Client, error) {
	return New("unix://"+socketPath, id)
}

func NewWithDialer(dialer func(ctx context.Context, addr string) (net.Conn, error), id Identity) (*Client, error) {
	opts := append(dialOptions(id), grpc.WithContextDialer(dialer))
	conn, err := grpc.NewClient("passthrough:///wgenrolld", opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial with custom dialer: %w", err)
	}
	return &Client{conn: conn, rpc: api.NewEnrollmentClient(conn)}, nil
}

func dialOptions(id Identity) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(identityInterceptor(id)),
	}
}

func identityInterceptor(id Identity) grpc.UnaryClientInterceptor {
	userID := strings.TrimSpace(id.UserID)
	role := strings.TrimSpace(id.Role)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if userID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, api.MetadataUserID, userID)
		}
		if role != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, api.MetadataUserRole, role)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// CreateInvite issues an invite for userID. A zero ttl selects the daemon
// default; deviceID may be empty for an unbound invite.
func (c *Client) CreateInvite(ctx context.Context, userID, deviceID string, ttl time.Duration) (enroll.Invite, error) {
	inv, err := c.rpc.CreateInvite(ctx, &api.CreateInviteRequest{
		UserID:     userID,
		DeviceID:   deviceID,
		TTLSeconds: int(ttl / time.Second),
	})
	if err != nil {
		return enroll.Invite{}, grpcErr(err)
	}
	return *inv, nil
}

func (c *Client) Enroll(ctx context.Context, inviteCode string, device enroll.DeviceIdentity, publicKey string) (enroll.EnrollResult, error) {
	res, err := c.rpc.Enroll(ctx, &api.EnrollRequest{
		InviteCode:      inviteCode,
		Device:          device,
		ClientPublicKey: publicKey,
	})
	if err != nil {
		return enroll.EnrollResult{}, grpcErr(err)
	}
	return *res, nil
}

func (c *Client) ListPeers(ctx context.Context) ([]enroll.Peer, error) {
	resp, err := c.rpc.ListPeers(ctx, &api.ListPeersRequest{})
	if err != nil {
		return nil, grpcErr(err)
	}
	return resp.Peers, nil
}

func (c *Client) RevokePeer(ctx context.Context, peerID string) (enroll.Peer, error) {
	p, err := c.rpc.RevokePeer(ctx, &api.RevokePeerRequest{PeerID: peerID})
	if err != nil {
		return enroll.Peer{}, grpcErr(err)
	}
	return *p, nil
}

func (c *Client) PatchPeer(ctx context.Context, peerID string, patch enroll.PeerPatch) (enroll.Peer, error) {
	p, err := c.rpc.PatchPeer(ctx, &api.PatchPeerRequest{
		PeerID:     peerID,
		AllowedIPs: patch.AllowedIPs,
		Tags:       patch.Tags,
	})
	if err != nil {
		return enroll.Peer{}, grpcErr(err)
	}
	return *p, nil
}

// Status reports the calling user's connection state.
func (c *Client) Status(ctx context.Context) (enroll.Status, error) {
	st, err := c.rpc.GetStatus(ctx, &api.GetStatusRequest{})
	if err != nil {
		return enroll.Status{}, grpcErr(err)
	}
	return *st, nil
}

// SelfPeer returns the calling user's first active peer.
func (c *Client) SelfPeer(ctx context.Context) (enroll.Peer, error) {
	p, err := c.rpc.GetSelfPeer(ctx, &api.GetSelfPeerRequest{})
	if err != nil {
		return enroll.Peer{}, grpcErr(err)
	}
	return *p, nil
}

func (c *Client) ListAudit(ctx context.Context, limit int) ([]enroll.AuditEvent, error) {
	resp, err := c.rpc.ListAudit(ctx, &api.ListAuditRequest{Limit: limit})
	if err != nil {
		return nil, grpcErr(err)
	}
	return resp.Events, nil
}

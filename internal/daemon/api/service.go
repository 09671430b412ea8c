// Package api declares the enrollment gRPC service: method names, wire
// messages, the JSON codec they travel with, and typed server and client
// bindings.
package api

import (
	"context"

	"google.golang.org/grpc"

	"wgenroll/internal/enroll"
)

const ServiceName = "wgenroll.v1.Enrollment"

const (
	FullMethodCreateInvite = "/" + ServiceName + "/CreateInvite"
	FullMethodEnroll       = "/" + ServiceName + "/Enroll"
	FullMethodListPeers    = "/" + ServiceName + "/ListPeers"
	FullMethodRevokePeer   = "/" + ServiceName + "/RevokePeer"
	FullMethodPatchPeer    = "/" + ServiceName + "/PatchPeer"
	FullMethodGetStatus    = "/" + ServiceName + "/GetStatus"
	FullMethodGetSelfPeer  = "/" + ServiceName + "/GetSelfPeer"
	FullMethodListAudit    = "/" + ServiceName + "/ListAudit"
)

// AdminMethods lists the methods that require an admin or owner role.
var AdminMethods = map[string]bool{
	FullMethodCreateInvite: true,
	FullMethodListPeers:    true,
	FullMethodRevokePeer:   true,
	FullMethodPatchPeer:    true,
	FullMethodListAudit:    true,
}

// EnrollmentServer is implemented by the daemon.
type EnrollmentServer interface {
	CreateInvite(context.Context, *CreateInviteRequest) (*enroll.Invite, error)
	Enroll(context.Context, *EnrollRequest) (*enroll.EnrollResult, error)
	ListPeers(context.Context, *ListPeersRequest) (*ListPeersResponse, error)
	RevokePeer(context.Context, *RevokePeerRequest) (*enroll.Peer, error)
	PatchPeer(context.Context, *PatchPeerRequest) (*enroll.Peer, error)
	GetStatus(context.Context, *GetStatusRequest) (*enroll.Status, error)
	GetSelfPeer(context.Context, *GetSelfPeerRequest) (*enroll.Peer, error)
	ListAudit(context.Context, *ListAuditRequest) (*ListAuditResponse, error)
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnrollmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateInvite", EnrollmentServer.CreateInvite),
		unary("Enroll", EnrollmentServer.Enroll),
		unary("ListPeers", EnrollmentServer.ListPeers),
		unary("RevokePeer", EnrollmentServer.RevokePeer),
		unary("PatchPeer", EnrollmentServer.PatchPeer),
		unary("GetStatus", EnrollmentServer.GetStatus),
		unary("GetSelfPeer", EnrollmentServer.GetSelfPeer),
		unary("ListAudit", EnrollmentServer.ListAudit),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wgenroll/v1/enrollment",
}

// RegisterEnrollmentServer registers srv on s.
func RegisterEnrollmentServer(s grpc.ServiceRegistrar, srv EnrollmentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(EnrollmentServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EnrollmentServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EnrollmentServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// EnrollmentClient is the typed client stub.
type EnrollmentClient struct {
	cc grpc.ClientConnInterface
}

func NewEnrollmentClient(cc grpc.ClientConnInterface) *EnrollmentClient {
	return &EnrollmentClient{cc: cc}
}

func (c *EnrollmentClient) CreateInvite(ctx context.Context, in *CreateInviteRequest, opts ...grpc.CallOption) (*enroll.Invite, error) {
	return invoke[enroll.Invite](ctx, c.cc, FullMethodCreateInvite, in, opts)
}

func (c *EnrollmentClient) Enroll(ctx context.Context, in *EnrollRequest, opts ...grpc.CallOption) (*enroll.EnrollResult, error) {
	return invoke[enroll.EnrollResult](ctx, c.cc, FullMethodEnroll, in, opts)
}

func (c *EnrollmentClient) ListPeers(ctx context.Context, in *ListPeersRequest, opts ...grpc.CallOption) (*ListPeersResponse, error) {
	return invoke[ListPeersResponse](ctx, c.cc, FullMethodListPeers, in, opts)
}

func (c *EnrollmentClient) RevokePeer(ctx context.Context, in *RevokePeerRequest, opts ...grpc.CallOption) (*enroll.Peer, error) {
	return invoke[enroll.Peer](ctx, c.cc, FullMethodRevokePeer, in, opts)
}

func (c *EnrollmentClient) PatchPeer(ctx context.Context, in *PatchPeerRequest, opts ...grpc.CallOption) (*enroll.Peer, error) {
	return invoke[enroll.Peer](ctx, c.cc, FullMethodPatchPeer, in, opts)
}

func (c *EnrollmentClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*enroll.Status, error) {
	return invoke[enroll.Status](ctx, c.cc, FullMethodGetStatus, in, opts)
}

func (c *EnrollmentClient) GetSelfPeer(ctx context.Context, in *GetSelfPeerRequest, opts ...grpc.CallOption) (*enroll.Peer, error) {
	return invoke[enroll.Peer](ctx, c.cc, FullMethodGetSelfPeer, in, opts)
}

func (c *EnrollmentClient) ListAudit(ctx context.Context, in *ListAuditRequest, opts ...grpc.CallOption) (*ListAuditResponse, error) {
	return invoke[ListAuditResponse](ctx, c.cc, FullMethodListAudit, in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

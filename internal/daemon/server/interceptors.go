package server

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"wgenroll/internal/daemon/api"
)

// Caller is the identity resolved from request metadata.
type Caller struct {
	UserID string
	Role   string
}

// Admin reports whether the caller may use administrative methods.
func (c Caller) Admin() bool {
	role := strings.ToLower(strings.TrimSpace(c.Role))
	return role == api.RoleAdmin || role == api.RoleOwner
}

type callerKey struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func callerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	started := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	level := s.log.Debug
	if code == codes.Internal || code == codes.Unknown {
		level = s.log.Error
	}
	level("rpc", "method", info.FullMethod, "code", code.String(), "duration", time.Since(started), "err", err)
	return resp, err
}

// requireTrustedNetwork admits local transports unconditionally and TCP
// callers whose address falls in a trusted prefix.
func (s *Server) requireTrustedNetwork(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	p, ok := peer.FromContext(ctx)
	if ok && p.Addr != nil && slices.Contains(s.opts.LocalNetworks, p.Addr.Network()) {
		return handler(ctx, req)
	}

	raw := s.clientAddress(ctx, p)
	if raw == "" {
		return nil, denied(codes.PermissionDenied, api.ReasonUntrustedNetwork, "untrusted network (no client ip)")
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return nil, denied(codes.PermissionDenied, api.ReasonUntrustedNetwork, "untrusted network (bad client ip)")
	}
	addr = addr.Unmap()
	for _, prefix := range s.opts.TrustedPrefixes {
		if prefix.Contains(addr) {
			return handler(ctx, req)
		}
	}
	s.log.Debug("rejected untrusted caller", "method", info.FullMethod, "client_ip", addr.String())
	return nil, denied(codes.PermissionDenied, api.ReasonUntrustedNetwork, "untrusted network")
}

func (s *Server) clientAddress(ctx context.Context, p *peer.Peer) string {
	if s.opts.TrustProxy {
		md, _ := metadata.FromIncomingContext(ctx)
		if xff := firstValue(md, api.MetadataForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := firstValue(md, api.MetadataRealIP); xri != "" {
			return xri
		}
	}
	if p == nil || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

// authenticate resolves the caller identity. Identity is asserted by the
// fronting layer through metadata, never derived here.
func (s *Server) authenticate(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	userID := firstValue(md, api.MetadataUserID)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing auth (x-user-id)")
	}
	return handler(withCaller(ctx, Caller{UserID: userID, Role: firstValue(md, api.MetadataUserRole)}), req)
}

func (s *Server) requireAdmin(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if api.AdminMethods[info.FullMethod] && !callerFrom(ctx).Admin() {
		return nil, denied(codes.PermissionDenied, api.ReasonAdminRequired, "admin role required")
	}
	return handler(ctx, req)
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"wgenroll/internal/daemon/api"
	"wgenroll/internal/enroll"
)

// Options controls caller admission.
type Options struct {
	// TrustedPrefixes admit TCP callers by source address.
	TrustedPrefixes []netip.Prefix
	// TrustProxy takes the client address from x-forwarded-for or x-real-ip.
	TrustProxy bool
	// LocalNetworks are transports whose callers skip the address check.
	// Defaults to unix sockets.
	LocalNetworks []string
	Logger        *slog.Logger
}

// Server binds the enrollment engine to the gRPC service. The engine is
// passed in once at construction and shared by every handler.
type Server struct {
	engine *enroll.Engine
	opts   Options
	log    *slog.Logger
}

var _ api.EnrollmentServer = (*Server)(nil)

func New(engine *enroll.Engine, opts Options) *Server {
	if len(opts.LocalNetworks) == 0 {
		opts.LocalNetworks = []string{"unix"}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, opts: opts, log: log.With("component", "daemon-server")}
}

// GRPCServer builds a grpc.Server with the admission interceptors and tracing
// installed and the enrollment service registered.
func (s *Server) GRPCServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			s.logCalls,
			s.requireTrustedNetwork,
			s.authenticate,
			s.requireAdmin,
		),
	}, extra...)
	srv := grpc.NewServer(opts...)
	api.RegisterEnrollmentServer(srv, s)
	return srv
}

// ListenAndServe serves on the unix socket and, when listenAddr is set, on
// TCP until ctx is cancelled or a listener fails.
func (s *Server) ListenAndServe(ctx context.Context, socketPath, listenAddr string) error {
	srv := s.GRPCServer()

	unixLn, err := listenUnix(socketPath)
	if err != nil {
		return fmt.Errorf("listen socket: %w", err)
	}
	s.log.Info("listening", "socket", socketPath)

	var tcpLn net.Listener
	if strings.TrimSpace(listenAddr) != "" {
		tcpLn, err = net.Listen("tcp", listenAddr)
		if err != nil {
			_ = unixLn.Close()
			_ = os.Remove(socketPath) // best-effort cleanup
			return fmt.Errorf("listen tcp %s: %w", listenAddr, err)
		}
		s.log.Info("listening", "addr", tcpLn.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(unixLn) })
	if tcpLn != nil {
		g.Go(func() error { return srv.Serve(tcpLn) })
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down listeners")
		srv.GracefulStop()
		return nil
	})

	err = g.Wait()
	_ = os.Remove(socketPath) // best-effort cleanup
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func listenUnix(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix: %w", err)
	}
	if err := os.Chmod(socketPath, 0o660); err != nil {
		_ = ln.Close() // best-effort cleanup
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return ln, nil
}

// --- gRPC methods ---

func (s *Server) CreateInvite(ctx context.Context, req *api.CreateInviteRequest) (*enroll.Invite, error) {
	ttl, err := enroll.InviteTTL(req.TTLSeconds)
	if err != nil {
		return nil, toGRPCError(err)
	}
	inv, err := s.engine.CreateInvite(ctx, enroll.InviteRequest{
		ActorUserID: callerFrom(ctx).UserID,
		UserID:      req.UserID,
		DeviceID:    req.DeviceID,
		TTL:         ttl,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &inv, nil
}

func (s *Server) Enroll(ctx context.Context, req *api.EnrollRequest) (*enroll.EnrollResult, error) {
	res, err := s.engine.Enroll(ctx, enroll.EnrollRequest{
		ActorUserID:     callerFrom(ctx).UserID,
		InviteCode:      req.InviteCode,
		Device:          req.Device,
		ClientPublicKey: req.ClientPublicKey,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &res, nil
}

func (s *Server) ListPeers(ctx context.Context, _ *api.ListPeersRequest) (*api.ListPeersResponse, error) {
	peers, err := s.engine.ListPeers(ctx)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if peers == nil {
		peers = []enroll.Peer{}
	}
	return &api.ListPeersResponse{Peers: peers}, nil
}

func (s *Server) RevokePeer(ctx context.Context, req *api.RevokePeerRequest) (*enroll.Peer, error) {
	p, err := s.engine.RevokePeer(ctx, callerFrom(ctx).UserID, req.PeerID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &p, nil
}

func (s *Server) PatchPeer(ctx context.Context, req *api.PatchPeerRequest) (*enroll.Peer, error) {
	p, err := s.engine.UpdatePeer(ctx, callerFrom(ctx).UserID, req.PeerID, enroll.PeerPatch{
		AllowedIPs: req.AllowedIPs,
		Tags:       req.Tags,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &p, nil
}

func (s *Server) GetStatus(ctx context.Context, _ *api.GetStatusRequest) (*enroll.Status, error) {
	st, err := s.engine.StatusFor(ctx, callerFrom(ctx).UserID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &st, nil
}

func (s *Server) GetSelfPeer(ctx context.Context, _ *api.GetSelfPeerRequest) (*enroll.Peer, error) {
	p, err := s.engine.PeerForUser(ctx, callerFrom(ctx).UserID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &p, nil
}

func (s *Server) ListAudit(ctx context.Context, req *api.ListAuditRequest) (*api.ListAuditResponse, error) {
	events, err := s.engine.ListAudit(ctx, req.Limit)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if events == nil {
		events = []enroll.AuditEvent{}
	}
	return &api.ListAuditResponse{Events: events}, nil
}

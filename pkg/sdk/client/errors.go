package client

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wgenroll/internal/daemon/api"
	"wgenroll/internal/enroll"
)

var (
	// ErrUntrustedNetwork means the daemon rejected the caller's source address.
	ErrUntrustedNetwork = errors.New("untrusted network")
	// ErrAdminRequired means the method needs an admin or owner role.
	ErrAdminRequired = errors.New("admin role required")
	// ErrUnauthenticated means no user id was sent.
	ErrUnauthenticated = errors.New("missing user identity")
	// ErrDaemonUnavailable means the daemon could not be reached.
	ErrDaemonUnavailable = errors.New("enrollment daemon unavailable")
)

var reasonErrors = map[string]error{
	api.ReasonInvalidInvite:    enroll.ErrInvalidInvite,
	api.ReasonDeviceMismatch:   enroll.ErrDeviceMismatch,
	api.ReasonMissingPublicKey: enroll.ErrMissingPublicKey,
	api.ReasonPoolExhausted:    enroll.ErrPoolExhausted,
	api.ReasonPeerNotFound:     enroll.ErrNotFound,
	api.ReasonInvalidCIDR:      enroll.ErrInvalidCIDR,
	api.ReasonUntrustedNetwork: ErrUntrustedNetwork,
	api.ReasonAdminRequired:    ErrAdminRequired,
}

// remoteError keeps the daemon's message while matching a local sentinel.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

// grpcErr turns a daemon status back into the engine's error values so callers
// can use errors.Is and errors.As across the wire.
func grpcErr(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var (
		reason     string
		violations []*errdetails.BadRequest_FieldViolation
	)
	for _, d := range st.Details() {
		switch detail := d.(type) {
		case *errdetails.ErrorInfo:
			if detail.GetDomain() == api.ErrorDomain {
				reason = detail.GetReason()
			}
		case *errdetails.BadRequest:
			violations = detail.GetFieldViolations()
		}
	}

	if reason == api.ReasonValidation {
		if len(violations) > 0 {
			return &enroll.ValidationError{
				Field:   violations[0].GetField(),
				Message: violations[0].GetDescription(),
			}
		}
		return &enroll.ValidationError{Message: st.Message()}
	}
	if kind, ok := reasonErrors[reason]; ok {
		return &remoteError{kind: kind, msg: st.Message()}
	}

	switch st.Code() {
	case codes.Unauthenticated:
		return &remoteError{kind: ErrUnauthenticated, msg: st.Message()}
	case codes.Unavailable:
		return &remoteError{kind: ErrDaemonUnavailable, msg: st.Message()}
	}
	return errors.New(st.Message())
}

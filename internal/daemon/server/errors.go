package server

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wgenroll/internal/daemon/api"
	"wgenroll/internal/enroll"
)

// --- Error mapping ---

func toGRPCError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	switch {
	case errors.Is(err, enroll.ErrInvalidInvite):
		return denied(codes.PermissionDenied, api.ReasonInvalidInvite, msg)
	case errors.Is(err, enroll.ErrDeviceMismatch):
		return denied(codes.PermissionDenied, api.ReasonDeviceMismatch, msg)
	case errors.Is(err, enroll.ErrMissingPublicKey):
		return denied(codes.InvalidArgument, api.ReasonMissingPublicKey, msg)
	case errors.Is(err, enroll.ErrInvalidCIDR):
		return denied(codes.InvalidArgument, api.ReasonInvalidCIDR, msg)
	case errors.Is(err, enroll.ErrPoolExhausted):
		return denied(codes.ResourceExhausted, api.ReasonPoolExhausted, msg)
	case errors.Is(err, enroll.ErrNotFound):
		return denied(codes.NotFound, api.ReasonPeerNotFound, msg)
	}

	var valErr *enroll.ValidationError
	if errors.As(err, &valErr) {
		return validationStatus(valErr)
	}
	return status.Error(codes.Internal, msg)
}

// denied builds a status carrying an ErrorInfo with reason.
func denied(code codes.Code, reason, message string) error {
	st := status.New(code, message)
	withDetails, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: api.ErrorDomain,
	})
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

func validationStatus(v *enroll.ValidationError) error {
	st := status.New(codes.InvalidArgument, v.Error())
	withDetails, err := st.WithDetails(
		&errdetails.ErrorInfo{Reason: api.ReasonValidation, Domain: api.ErrorDomain},
		&errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: v.Field, Description: v.Message},
			},
		},
	)
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

package api

import (
	"context"
	"errors"

	"github.com/matheus3301/admiral/internal/chat"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		verr     *chat.ValidationError
		notFound *gateway.NotFoundError
		network  *gateway.NetworkError
		rejected *gateway.RejectedError
	)
	switch {
	case errors.As(err, &verr):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, store.ErrNotFound), errors.As(err, &notFound):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.As(err, &network):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.As(err, &rejected):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return grpcstatus.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

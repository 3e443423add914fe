package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/internal/refdata"
	"github.com/signalsfoundry/membership-globe/internal/scene"
	"github.com/signalsfoundry/membership-globe/kb"
)

// ErrInvalidRequest marks malformed request payloads.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps domain errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrUnknownOrganization),
		errors.Is(err, kb.ErrCountryNotFound),
		errors.Is(err, scene.ErrNotMember):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, refdata.ErrInvalidData),
		errors.Is(err, core.ErrInvalidGeoCoordinate):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrTooManyActive),
		errors.Is(err, core.ErrEmptyPointSet):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, kb.ErrCountryExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

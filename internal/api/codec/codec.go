// Package codec carries gRPC messages as JSON, so the services need no
// generated protobuf types.
package codec

import (
	"encoding/json"
	"errors"

	"github.com/Domenick1991/airways/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const Name = "json"

type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSON) Name() string {
	return Name
}

// Status converts a service error into a gRPC status error.
func Status(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrGateway):
		code = codes.Unavailable
	case errors.Is(err, domain.ErrConflict):
		code = codes.Aborted
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

package control

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/rulesync/pkg/rulesync"
)

// Controller is the part of *rulesync.Controller the service drives.
type Controller interface {
	Sync(ctx context.Context) (rulesync.Result, error)
	Reload(ctx context.Context) error
}

// Observer records per-request telemetry. Optional.
type Observer interface {
	RecordGRPCRequest(method, status string)
	ObserveGRPCDuration(method string, seconds float64)
}

// Service implements ControlServer on top of a Controller.
type Service struct {
	ctrl   Controller
	logger *slog.Logger
}

func NewService(ctrl Controller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ctrl: ctrl, logger: logger}
}

var _ ControlServer = (*Service)(nil)

// Sync implements ControlServer.
func (s *Service) Sync(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.logger.Info("sync requested over grpc")

	res, err := s.ctrl.Sync(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	out, convErr := toStruct(res)
	if convErr != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", convErr)
	}
	return out, nil
}

// Reload implements ControlServer.
func (s *Service) Reload(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.logger.Info("reload requested over grpc")

	if err := s.ctrl.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Errorf(codes.Unavailable, "%v", err)
	}
	return structpb.NewStruct(map[string]any{"reloaded": true})
}

// UnaryServerInterceptor reports every call to obs.
func UnaryServerInterceptor(obs Observer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		method := info.FullMethod
		if i := strings.LastIndex(method, "/"); i >= 0 {
			method = method[i+1:]
		}
		obs.RecordGRPCRequest(method, status.Code(err).String())
		obs.ObserveGRPCDuration(method, time.Since(start).Seconds())
		return resp, err
	}
}

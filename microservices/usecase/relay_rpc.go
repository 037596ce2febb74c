package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	relayRPC "github.com/liverex/leela-zero-ui/microservices/proto"
)

type EngineStore interface {
	SendSync(ctx context.Context, command string) (gtp.Response, error)
	SendAsync(command string) error
}

type RelayUseCase struct {
	store EngineStore
	log   *zap.SugaredLogger
	relayRPC.UnimplementedRelayServiceServer
}

func NewRelayUseCase(store EngineStore, log *zap.SugaredLogger) *RelayUseCase {
	return &RelayUseCase{
		store: store,
		log:   log,
	}
}

func (r *RelayUseCase) Send(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	command, err := gtp.PrepareCommand(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	if (gtp.Command{Text: command}).Name() == "quit" {
		return nil, status.Error(codes.InvalidArgument, "use Quit to stop the engine")
	}

	resp, err := r.store.SendSync(ctx, command)
	if err != nil {
		return nil, toStatus(err)
	}
	if !resp.OK() {
		return nil, status.Error(codes.FailedPrecondition, resp.Payload)
	}
	r.log.Debugf("relayed %q", command)
	return wrapperspb.String(resp.Payload), nil
}

func (r *RelayUseCase) Quit(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := r.store.SendAsync("quit"); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrMalformedCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotReady), errors.Is(err, errs.ErrProcessTerminated):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, errs.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/liverex/leela-zero-ui/internal/adapters"
	"github.com/liverex/leela-zero-ui/internal/bootstrap"
	"github.com/liverex/leela-zero-ui/internal/metrics"
	"github.com/liverex/leela-zero-ui/internal/repository"
	relayRPC "github.com/liverex/leela-zero-ui/microservices/proto"
	"github.com/liverex/leela-zero-ui/microservices/usecase"
)

func main() {
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		bootstrap.NewLogger(false).Error("Failed to setup configuration", zap.Error(err))
		return
	}
	logger := bootstrap.NewLogger(cfg.Debug)
	defer logger.Sync()

	addr := cfg.GrpcAddr
	if addr == "" {
		addr = ":8082"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := repository.NewEngineClient(logger, repository.ClientOptions{
		Name: "relay",
		Host: func(_, workDir string) (adapters.Process, error) {
			return adapters.Spawn(cfg.EmbeddedCommandLine(), workDir, logger.With("engine", "relay"))
		},
		CommandTimeout: cfg.CommandTimeout,
		Metrics:        metrics.New(),
	})
	if err := engine.Start(ctx, cfg.Player(0), cfg.WorkDir, cfg.StartupTimeout); err != nil {
		logger.Fatalw("cannot start engine", zap.Error(err))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		_ = engine.Terminate()
		logger.Fatalw("cant listen port", zap.Error(err))
	}

	server := grpc.NewServer()
	relayRPC.RegisterRelayServiceServer(server, usecase.NewRelayUseCase(engine, logger))

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigs:
			logger.Info("Received shutdown signal")
		case <-engineDone(engine):
			logger.Warn("engine exited")
		}
		server.GracefulStop()
	}()

	logger.Infof("starting relay server at %s", addr)
	if err := server.Serve(lis); err != nil {
		logger.Errorw("relay server stopped", zap.Error(err))
	}
	if _, err := engine.WaitQuit(); err != nil {
		logger.Warnw("engine did not exit cleanly", zap.Error(err))
	}
}

func engineDone(engine *repository.EngineClient) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		engine.Join()
		close(done)
	}()
	return done
}

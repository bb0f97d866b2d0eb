package grpc

import (
	"context"
	"log/slog"
	"net"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/transport"
)

func recoveryHandler(logger *slog.Logger) recovery.RecoveryHandlerFuncContext {
	return func(ctx context.Context, p any) error {
		logger.Error("grpc handler panic recovered", "panic", p)
		return nil
	}
}

func newGRPCServer(srv *Server, logger *slog.Logger) *grpc.Server {
	gs := grpc.NewServer(
		grpc.ForceServerCodec(encoding.GetCodec(transport.CodecName)),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainStreamInterceptor(recovery.StreamServerInterceptor(recovery.WithRecoveryHandlerContext(recoveryHandler(logger)))),
		grpc.ChainUnaryInterceptor(recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(recoveryHandler(logger)))),
	)
	gs.RegisterService(&ServiceDesc, srv)
	return gs
}

// Module assembles the gRPC-facing half of the node: the Server (holding
// the connID->Multiplexer session map), the underlying *grpc.Server with
// its stats handler and panic-recovery interceptors, and the listener
// lifecycle.
var Module = fx.Module("infra.grpc",
	fx.Provide(
		transport.BuildRegistry,
		NewServer,
		newGRPCServer,
	),
	fx.Invoke(func(reg *connection.Registry, srv *Server) {
		reg.SetProbeFunc(srv.Probe)
	}),
	fx.Invoke(func(lc fx.Lifecycle, gs *grpc.Server, cfg *config.Config, logger *slog.Logger) error {
		lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
		if err != nil {
			return err
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := gs.Serve(lis); err != nil {
						logger.Error("grpc server exited", "error", err)
					}
				}()
				logger.Info("grpc server listening", "addr", cfg.GRPC.ListenAddr)
				return nil
			},
			OnStop: func(context.Context) error {
				gs.GracefulStop()
				return nil
			},
		})
		return nil
	}),
)

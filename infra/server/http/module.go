package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
)

// Module assembles the operational HTTP surface's router and listener
// lifecycle, mirroring infra/server/grpc's Module shape: a router/server
// pair plus an fx.Hook pair for listen/graceful-shutdown.
var Module = fx.Module("infra.http",
	fx.Provide(NewRouter),
	fx.Invoke(func(lc fx.Lifecycle, router chi.Router, cfg *config.Config, logger *slog.Logger) error {
		if cfg.HTTP.ListenAddr == "" {
			return nil
		}
		lis, err := net.Listen("tcp", cfg.HTTP.ListenAddr)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: router}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server exited", "error", err)
					}
				}()
				logger.Info("http server listening", "addr", cfg.HTTP.ListenAddr)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
		return nil
	}),
)
